// Package blobstore provides storage for serialized module artifacts.
//
// Store is the interface the module loader reads artifacts through and the
// build pipeline publishes them through. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: map-backed, for tests and small in-process toolchains
//   - LocalStore: directory of artifacts, blobs served via mmap
//   - CachingStore: read-through remote-to-local mirror with prefetch
//   - s3.Store: Amazon S3 with range reads and parallel uploads
//   - minio.Store: S3-compatible object storage for self-hosted deployments
//
// # Custom Implementations
//
// Implement the Store interface to support other backends. Blobs whose bytes
// are addressable without copying should also implement Mappable; readers
// use it to decode artifacts zero-copy.
package blobstore
