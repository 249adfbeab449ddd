// Package drain empties the pending-enhancement queue by running a deep
// enhancement pass for every polled record id.
//
// Worker.RunOnce is single-flight both within the process and, when a lock
// path is configured, across processes so the CLI and the daemon never drain
// concurrently. Per-id failures are logged and counted without stopping the
// run and the failed id is not re-enqueued. When the run is cancelled or its
// runtime budget expires, the in-flight id is put back so its pending entry
// survives for the next run. Start and Stop drive RunOnce on a fixed
// interval.
package drain
