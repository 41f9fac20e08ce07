// Package jobspec compiles a template-matching job configuration into an
// immutable Descriptor and renders per-tomogram SLURM submission scripts.
//
// A JobConfig is validated once by Compile. The resulting Descriptor holds no
// per-tomogram state; Args and Render substitute only the paths carried by a
// Target, so one Descriptor serves every tomogram in a batch and identical
// inputs always produce byte-identical output.
//
// Argument order is fixed and significant:
//
//  1. -v, -a, --dose-accumulation, --defocus, -t, -d, -m
//  2. --particle-diameter or --angular-search
//  3. --tomogram-mask (mask enabled and resolved for this tomogram)
//  4. -s X Y Z (volume split configured)
//  5. --voxel-size-angstrom
//  6. -r --rng-seed (random-phase correction only)
//  7. -g ids...
//  8. --amplitude-contrast, --spherical-aberration, --voltage
//  9. --z-axis-rotational-symmetry (positive integer values only)
//  10. --per-tilt-weighting, --tomogram-ctf-model, --non-spherical-mask,
//     --spectral-whitening, --low-pass, --high-pass
package jobspec
