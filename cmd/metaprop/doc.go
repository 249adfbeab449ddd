// Package main hosts the metaprop CLI entrypoint and command graph.
//
// The Cobra command tree opens the record store and pending queue directly,
// runs enhancement passes on demand, drains the queue once or on a schedule
// (`metaprop run`), and scaffolds configuration. Heavy lifting lives in the
// internal packages; commands here only wire them together and render output.
package main
