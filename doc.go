// Package cruxmod reads and writes Crux serialized modules: the binary
// artifacts the compiler emits for a compiled module and consumes when that
// module is imported.
//
// A module artifact is a bit-packed container holding the module's typed
// declaration graph, its input manifest, an identifier pool and the lookup
// index. Writing serializes a decl.Module graph into a container; reading
// opens the container and materializes declarations lazily, on demand, so
// importing a large module never decodes more than what is looked up.
//
// # Writing
//
//	var buf bytes.Buffer
//	n, err := cruxmod.Write(ctx, &buf, module,
//	    cruxmod.WithProducer("cruxc 1.4.0"),
//	    cruxmod.WithCompression(format.CompressionZstd),
//	)
//
// When a module's artifact cannot be produced, WriteFallback records the
// module identity and its source files instead; opening such an artifact
// fails with a StaleModuleError naming the files to rebuild from.
//
// # Reading
//
//	r, err := cruxmod.OpenFile("geometry.cxm")
//	if err != nil { ... }
//	defer r.Close()
//
//	entries, err := r.LookupValue("Point")
//	d, err := r.Decl(ctx, entries[0].Decl)
//
// Open reads from memory, OpenFile memory-maps an artifact, and OpenBlob
// reads from a blobstore.Store. A Reader is single-threaded; the loader
// package adds locking, per-module session caching and concurrent loading
// on top.
//
// # Cross-module references
//
// Declarations owned by other modules serialize as name paths, not
// definitions. Materializing one replays the path through the configured
// Resolver (see WithResolver); a loader.Loader resolves its own sessions'
// references automatically.
package cruxmod
