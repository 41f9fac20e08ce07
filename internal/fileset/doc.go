// Package fileset resolves the metadata, volume, and optional mask files that
// belong to one tomogram across independent directories.
//
// Directory listings are sorted lexicographically, so when more than one file
// of a kind matches an identifier the first listed file is chosen and an
// ambiguous_match warning is logged. Missing metadata or volume files fail the
// tomogram with ErrMissingFile; a missing mask is only a warning.
package fileset
