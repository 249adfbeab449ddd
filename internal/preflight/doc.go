// Package preflight provides readiness checks for the filesystem paths and
// queue backend metaprop depends on.
//
// These checks run in two contexts:
//   - `metaprop run` calls RunAll before starting the drain schedule and
//     refuses to start when any check fails.
//   - `metaprop status` renders every result alongside queue statistics.
package preflight
