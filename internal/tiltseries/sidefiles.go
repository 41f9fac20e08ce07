package tiltseries

import (
	"fmt"
	"path/filepath"
	"strconv"

	"tmbatch/internal/fileutil"
	"tmbatch/internal/tomoid"
)

// SideFiles names the three flat files written for one tomogram.
type SideFiles struct {
	TiltFile     string
	DefocusFile  string
	ExposureFile string
}

// SideFilePaths returns the side file locations for id inside dir.
func SideFilePaths(dir string, id tomoid.TomogramID) SideFiles {
	return SideFiles{
		TiltFile:     filepath.Join(dir, id.String()+".tlt"),
		DefocusFile:  filepath.Join(dir, id.String()+"_defocus.txt"),
		ExposureFile: filepath.Join(dir, id.String()+"_exposure.txt"),
	}
}

// WriteSideFiles writes one value per line in tilt order. Each file is
// replaced atomically so a rerun produces identical bytes.
func WriteSideFiles(dir string, id tomoid.TomogramID, series Series) (SideFiles, error) {
	files := SideFilePaths(dir, id)
	writes := []struct {
		path   string
		values []float64
	}{
		{files.TiltFile, series.Angles},
		{files.DefocusFile, series.Defocus},
		{files.ExposureFile, series.Exposure},
	}
	for _, w := range writes {
		if err := fileutil.WriteLines(w.path, formatValues(w.values)); err != nil {
			return SideFiles{}, fmt.Errorf("write %s: %w", filepath.Base(w.path), err)
		}
	}
	return files, nil
}

// FormatValue renders v with the shortest representation that round-trips.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatValues(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = FormatValue(v)
	}
	return out
}
