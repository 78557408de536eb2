// Package s3 provides an S3 implementation of the blobstore.Store interface,
// plus a DynamoDB-backed commit store for atomically publishing module
// artifacts.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := awss3.NewFromConfig(cfg)
//	store := s3.NewStore(client, "my-bucket", "modules/")
//
//	ldr := loader.New(store)
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large artifacts
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// CommitStore layers atomic publishing on top: artifacts are written under
// immutable revision keys and a DynamoDB conditional write moves the
// per-module pointer, so two builders racing to publish the same module
// cannot silently overwrite each other.
package s3
