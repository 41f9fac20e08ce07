package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// TiltRow is one tilt image in a generated STAR fixture.
type TiltRow struct {
	Angle       float64
	DefocusU    float64
	DefocusV    float64
	PreExposure float64
}

// DefaultTiltRows is a short three-tilt series.
var DefaultTiltRows = []TiltRow{
	{Angle: 0, DefocusU: 30000, DefocusV: 32000, PreExposure: 0},
	{Angle: 3, DefocusU: 30500, DefocusV: 31500, PreExposure: 3.5},
	{Angle: -3, DefocusU: 29000, DefocusV: 31000, PreExposure: 7},
}

// WriteStar writes a RELION tilt-series STAR file with the given rows. Nil
// rows write DefaultTiltRows.
func WriteStar(t testing.TB, path string, rows []TiltRow) {
	t.Helper()

	if rows == nil {
		rows = DefaultTiltRows
	}
	block := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	fmt.Fprintf(&b, "\n# version 50001\n\ndata_%s\n\nloop_\n", block)
	b.WriteString("_rlnMicrographMovieName #1\n")
	b.WriteString("_rlnTomoNominalStageTiltAngle #2\n")
	b.WriteString("_rlnDefocusU #3\n")
	b.WriteString("_rlnDefocusV #4\n")
	b.WriteString("_rlnMicrographPreExposure #5\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "frames/%s_%03d.eer %g %g %g %g\n", block, i+1, row.Angle, row.DefocusU, row.DefocusV, row.PreExposure)
	}
	writeText(t, path, b.String())
}

// WriteMRC writes a small placeholder volume file.
func WriteMRC(t testing.TB, path string) {
	t.Helper()
	WriteFile(t, path, 1024)
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()
	writeText(t, path, content)
}

func writeText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Dataset is a metadata/volume/mask directory triple under one temp root.
type Dataset struct {
	Root        string
	MetadataDir string
	VolumeDir   string
	MaskDir     string
	Template    string
	Mask        string
}

// NewDataset creates empty metadata, volume, and mask directories plus a
// template and mask volume.
func NewDataset(t testing.TB) Dataset {
	t.Helper()

	root := t.TempDir()
	ds := Dataset{
		Root:        root,
		MetadataDir: filepath.Join(root, "star"),
		VolumeDir:   filepath.Join(root, "mrc"),
		MaskDir:     filepath.Join(root, "bmask"),
		Template:    filepath.Join(root, "template.mrc"),
		Mask:        filepath.Join(root, "mask.mrc"),
	}
	for _, dir := range []string{ds.MetadataDir, ds.VolumeDir, ds.MaskDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	WriteMRC(t, ds.Template)
	WriteMRC(t, ds.Mask)
	return ds
}

// AddTomogram writes Position_<id>.star, rec_Position_<id>.mrc, and, when
// withMask is set, bmask_<id>.mrc.
func (d Dataset) AddTomogram(t testing.TB, id string, withMask bool) {
	t.Helper()
	WriteStar(t, filepath.Join(d.MetadataDir, "Position_"+id+".star"), nil)
	WriteMRC(t, filepath.Join(d.VolumeDir, "rec_Position_"+id+".mrc"))
	if withMask {
		WriteMRC(t, filepath.Join(d.MaskDir, "bmask_"+id+".mrc"))
	}
}
