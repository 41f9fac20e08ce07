// Package batch drives the per-tomogram pipeline over a set of identifiers.
//
// A run moves through three phases:
//
//   - Collect builds the identifier list from an explicit list file or by
//     scanning the volume directory.
//   - Validate resolves and reads the first identifier only. Any failure, or
//     an empty tilt series, aborts the run before a single file is written.
//   - Run processes every identifier in order: resolve, read metadata, write
//     side files, render the script, submit. A failure at any step is logged
//     with the identifier, recorded, and the loop moves on.
//
// Processing is sequential. The only state shared across tomograms is the
// compiled jobspec.Descriptor. Each tomogram writes only inside its own
// tomo_<id> directory, and rerunning regenerates identical files. A file lock
// in the output directory keeps two runs from writing the same tree at once.
package batch
