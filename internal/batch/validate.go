package batch

import (
	"context"
	"fmt"

	"tmbatch/internal/fileset"
	"tmbatch/internal/logging"
	"tmbatch/internal/services"
	"tmbatch/internal/tiltseries"
	"tmbatch/internal/tomoid"
)

// Report is the outcome of the fail-fast gate on the first identifier.
type Report struct {
	ID     tomoid.TomogramID
	Files  fileset.FileSet
	Tilts  int
	Ranges tiltseries.Ranges
}

// Validate resolves and reads id. It fails with services.ErrValidation when
// the files cannot be resolved or the metadata yields no tilt data.
func (r *Runner) Validate(ctx context.Context, id tomoid.TomogramID) (Report, error) {
	ctx = services.WithStep(services.WithTomogramID(r.context(ctx), id.String()), "validate")
	logger := logging.WithContext(ctx, r.logger)

	set, err := r.cfg.Resolver.Resolve(ctx, id)
	if err != nil {
		return Report{}, services.Wrap(services.ErrValidation, "validate", id.String(), "resolve first tomogram", err)
	}
	series := tiltseries.Read(ctx, set.MetadataPath, r.logger)
	ranges, ok := series.Ranges()
	if !ok {
		return Report{}, services.Wrap(services.ErrValidation, "validate", id.String(),
			fmt.Sprintf("missing tilt/defocus/exposure data in %s", set.MetadataPath), nil)
	}

	report := Report{ID: id, Files: set, Tilts: series.Len(), Ranges: ranges}
	logger.Info("first tomogram validated",
		logging.Int("tilts", report.Tilts),
		logging.Float64("tilt_min", ranges.Angles.Min),
		logging.Float64("tilt_max", ranges.Angles.Max),
		logging.Float64("defocus_min", ranges.Defocus.Min),
		logging.Float64("defocus_max", ranges.Defocus.Max),
		logging.Float64("exposure_min", ranges.Exposure.Min),
		logging.Float64("exposure_max", ranges.Exposure.Max),
		logging.String("metadata_path", set.MetadataPath),
		logging.String("volume_path", set.VolumePath),
		logging.String("mask_path", set.MaskPath),
	)
	return report, nil
}
