// Package knn implements the k-nearest-neighbor classifier used for part
// recognition.
//
// A Model is immutable once fitted: it owns copies of the training vectors and
// the sorted label alphabet, so it can be shared across goroutines and swapped
// atomically by its owner. Probabilities cover every label in the alphabet and
// sum to one; Filter narrows the ranked list by count and confidence floor.
package knn
