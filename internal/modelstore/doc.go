// Package modelstore persists fitted classifier models.
//
// Models are written as zstd-compressed JSON snapshots into numbered slots
// (knn-v000001.model.zst, ...). A LATEST object names the newest complete
// slot and is only rewritten after the slot itself is durable, so readers
// never observe a half-written model. Slots live either in a local directory
// or in a MinIO/S3 bucket.
package modelstore
