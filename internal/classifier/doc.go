// Package classifier owns the active k-nearest-neighbor model.
//
// The active model is an immutable snapshot published through an atomic
// pointer: predictions load it once and never observe a partially trained
// model. Recompute retrains from the feature store, persists the result, and
// only then swaps it in. Concurrent recompute requests share one training run.
package classifier
