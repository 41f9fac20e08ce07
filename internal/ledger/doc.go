// Package ledger records what each batch run did to each tomogram in a SQLite
// database kept beside the generated scripts.
//
// The ledger is history only. Runs never consult it to skip or retry work,
// and nothing in it tracks a job after submission; a row captures the outcome
// of one tomogram in one run (generated, submitted, failed, or skipped) along
// with the script path, SLURM job id, and failure message.
package ledger
