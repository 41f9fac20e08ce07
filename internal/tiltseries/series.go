package tiltseries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tmbatch/internal/logging"
	"tmbatch/internal/services"
	"tmbatch/internal/starfile"
)

// ErrMetadataRead marks metadata that could not be parsed into a series.
var ErrMetadataRead = errors.New("metadata read error")

const (
	ColumnTiltAngle   = "rlnTomoNominalStageTiltAngle"
	ColumnDefocusU    = "rlnDefocusU"
	ColumnDefocusV    = "rlnDefocusV"
	ColumnPreExposure = "rlnMicrographPreExposure"

	// DefocusDivisor converts the sum of the two raw defocus values (Å) into
	// their mean in micrometres.
	DefocusDivisor = 20000.0
)

// Series holds the index-aligned per-tilt values.
type Series struct {
	Angles   []float64
	Defocus  []float64
	Exposure []float64
}

// Len returns the number of tilt images.
func (s Series) Len() int { return len(s.Angles) }

// Empty reports whether any sequence is empty. Callers treat an empty series
// as a failed read.
func (s Series) Empty() bool {
	return len(s.Angles) == 0 || len(s.Defocus) == 0 || len(s.Exposure) == 0
}

// Range is the closed interval spanned by one sequence.
type Range struct {
	Min float64
	Max float64
}

// Ranges summarizes each sequence for the validation report.
type Ranges struct {
	Angles   Range
	Defocus  Range
	Exposure Range
}

// Ranges returns min/max per sequence. ok is false for an empty series.
func (s Series) Ranges() (Ranges, bool) {
	if s.Empty() {
		return Ranges{}, false
	}
	return Ranges{
		Angles:   span(s.Angles),
		Defocus:  span(s.Defocus),
		Exposure: span(s.Exposure),
	}, true
}

func span(values []float64) Range {
	r := Range{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		r.Min = min(r.Min, v)
		r.Max = max(r.Max, v)
	}
	return r
}

// Load parses path strictly and returns ErrMetadataRead on any failure.
func Load(path string) (Series, error) {
	file, err := starfile.ReadFile(path)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %w", ErrMetadataRead, err)
	}
	block, err := file.FindLoop(ColumnTiltAngle, ColumnDefocusU, ColumnDefocusV, ColumnPreExposure)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}

	angles, err := block.Floats(ColumnTiltAngle)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}
	defocusU, err := block.Floats(ColumnDefocusU)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}
	defocusV, err := block.Floats(ColumnDefocusV)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}
	exposure, err := block.Floats(ColumnPreExposure)
	if err != nil {
		return Series{}, fmt.Errorf("%w: %s: %w", ErrMetadataRead, path, err)
	}

	defocus := make([]float64, len(defocusU))
	for i := range defocusU {
		defocus[i] = (defocusU[i] + defocusV[i]) / DefocusDivisor
	}
	return Series{Angles: angles, Defocus: defocus, Exposure: exposure}, nil
}

// Read is the soft-failing form of Load: parse errors are logged and three
// empty sequences are returned.
func Read(ctx context.Context, path string, logger *slog.Logger) Series {
	series, err := Load(path)
	if err != nil {
		logger = logging.WithContext(services.WithStep(ctx, "metadata"), logger)
		logging.ErrorWithContext(logger, "metadata read failed", "metadata_read_error",
			logging.String("metadata_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the STAR file carries tilt angle, defocus U/V, and pre-exposure columns"),
		)
		return Series{Angles: []float64{}, Defocus: []float64{}, Exposure: []float64{}}
	}
	return series
}
