// Package services defines shared utilities consumed by the batch pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, tomogram IDs, and pipeline step names
//     for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     fatal to the whole run or local to one tomogram.
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
