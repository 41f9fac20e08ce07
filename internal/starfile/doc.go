// Package starfile parses the STAR tables written by RELION.
//
// Only the subset needed to read tilt-series metadata is supported: data
// blocks, loop_ tables with `_rlnName #N` headers, single key/value pairs,
// comments, and single- or double-quoted values. Values are kept as strings;
// callers convert the columns they need with Block.Floats.
package starfile
