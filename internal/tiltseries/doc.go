// Package tiltseries derives the per-tilt acquisition series (stage tilt
// angle, defocus, accumulated exposure) for one tomogram from its RELION
// metadata table and writes them as the flat side files consumed by the
// template-matching tool.
//
// All three sequences keep the row order of the source table, which is the
// acquisition order of the tilt series. Index i of each sequence describes the
// same tilt image.
package tiltseries
