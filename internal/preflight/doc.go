// Package preflight provides readiness checks for the filesystem paths and
// external commands a batch run depends on.
//
// These checks run in two contexts:
//   - The batch runner calls RunAll before collecting identifiers. Any
//     blocking failure aborts the run as a configuration error before a
//     single file is written.
//   - The CLI "tmbatch check" command prints every result as a table.
//
// Optional checks (mask directory, free space, the matching tool on the
// submit host) only ever warn.
package preflight
