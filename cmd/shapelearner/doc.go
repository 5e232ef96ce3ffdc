// Command shapelearner is the operator CLI: it prints capture schedules,
// renders views of STL meshes, manages jobs and feature rows, trains and
// queries the classifier, runs the part pipeline, and starts the daemon.
//
// Commands that touch jobs, features, or models open the configured stores
// directly. `model recompute` instead asks a running daemon to retrain so its
// active model is swapped in place.
package main
