// Package logs reads the JSON run log that tmbatch writes next to its
// console output.
//
// Tail returns the last matching records with bounded memory, and Follow
// polls for records appended after an offset until the context ends. Both
// accept a Filter so callers can narrow output to one run or one tomogram
// using the run_id and tomogram_id fields every batch log line carries.
package logs
