// Package config loads, normalizes, and validates tmbatch configuration.
//
// Configuration lives in a TOML file (default ~/.config/tmbatch/config.toml or
// ./tmbatch.toml) and supplies the defaults that command-line flags override:
// output and log directories, SLURM directive defaults, the CTF and seed
// defaults for the matching tool, and the filename prefixes used to recognise
// tomogram identifiers. Load returns a fully expanded, validated Config.
package config
