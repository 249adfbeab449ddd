// Package daemon hosts the long-running metaprop process.
//
// The daemon enforces single-instance execution with a lock file, drives the
// drain worker on its schedule and, when enabled, serves Prometheus metrics
// and a liveness endpoint over HTTP.
package daemon
