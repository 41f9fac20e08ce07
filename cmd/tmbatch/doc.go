// Package main hosts the tmbatch CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into batch runs over a
// tomogram dataset: identifier collection, the fail-fast validation gate,
// per-tomogram script generation, and queue submission. It also exposes
// environment checks, the submission history kept in the output tree, and
// configuration scaffolding.
//
// Keep this package lean: behaviour lives in the internal packages and is
// surfaced here through flags and output formatting.
package main
