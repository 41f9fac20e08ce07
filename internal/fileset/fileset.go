package fileset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tmbatch/internal/logging"
	"tmbatch/internal/services"
	"tmbatch/internal/tomoid"
)

// ErrMissingFile indicates a required metadata or volume file was not found.
var ErrMissingFile = errors.New("missing file")

const (
	MetadataExt = ".star"
	VolumeExt   = ".mrc"
	MaskExt     = ".mrc"
)

// Kind names the role a file plays for a tomogram.
type Kind string

const (
	KindMetadata Kind = "metadata"
	KindVolume   Kind = "volume"
	KindMask     Kind = "mask"
)

// FileSet is the resolved triple for one tomogram. MaskPath is empty when no
// mask directory was configured or no mask matched.
type FileSet struct {
	ID           tomoid.TomogramID
	MetadataPath string
	VolumePath   string
	MaskPath     string
}

// HasMask reports whether a mask file was resolved.
func (f FileSet) HasMask() bool { return f.MaskPath != "" }

// Resolver locates file sets. MaskDir is optional.
type Resolver struct {
	MetadataDir string
	VolumeDir   string
	MaskDir     string
	Matcher     *tomoid.Matcher
	Logger      *slog.Logger
}

// Resolve returns the file set for id.
func (r *Resolver) Resolve(ctx context.Context, id tomoid.TomogramID) (FileSet, error) {
	ctx = services.WithStep(services.WithTomogramID(ctx, id.String()), "resolve")
	logger := logging.WithContext(ctx, r.Logger)

	set := FileSet{ID: id}
	var err error
	if set.MetadataPath, err = r.required(logger, KindMetadata, r.MetadataDir, MetadataExt, id); err != nil {
		return FileSet{}, err
	}
	if set.VolumePath, err = r.required(logger, KindVolume, r.VolumeDir, VolumeExt, id); err != nil {
		return FileSet{}, err
	}
	set.MaskPath = r.mask(logger, id)

	logger.Debug("file set resolved",
		logging.String("metadata_path", set.MetadataPath),
		logging.String("volume_path", set.VolumePath),
		logging.String("mask_path", set.MaskPath),
	)
	return set, nil
}

func (r *Resolver) required(logger *slog.Logger, kind Kind, dir, ext string, id tomoid.TomogramID) (string, error) {
	matches, err := r.matching(dir, ext, id)
	if err != nil {
		return "", fmt.Errorf("%w: list %s directory %s: %w", ErrMissingFile, kind, dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no %s file for tomogram %s in %s", ErrMissingFile, kind, id, dir)
	}
	return pickFirst(logger, kind, matches), nil
}

func (r *Resolver) mask(logger *slog.Logger, id tomoid.TomogramID) string {
	if strings.TrimSpace(r.MaskDir) == "" {
		return ""
	}
	matches, err := r.matching(r.MaskDir, MaskExt, id)
	if err != nil {
		logging.WarnWithContext(logger, "mask directory unreadable", "mask_dir_unreadable",
			logging.String("mask_dir", r.MaskDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job runs without a tomogram mask"),
		)
		return ""
	}
	if len(matches) == 0 {
		logging.WarnWithContext(logger, "no tomogram mask found", "mask_missing",
			logging.String("mask_dir", r.MaskDir),
			logging.String(logging.FieldImpact, "job runs without a tomogram mask"),
			logging.String(logging.FieldErrorHint, "add a mask file ending in _<id>.mrc or pass --no-tomogram-mask"),
		)
		return ""
	}
	return pickFirst(logger, KindMask, matches)
}

func pickFirst(logger *slog.Logger, kind Kind, matches []string) string {
	if len(matches) > 1 {
		logging.WarnWithContext(logger, "multiple files matched; using first", "ambiguous_match",
			logging.String("kind", string(kind)),
			logging.String("chosen", matches[0]),
			logging.Any("candidates", matches),
			logging.String(logging.FieldImpact, "the first file in name order is used"),
			logging.String(logging.FieldErrorHint, "rename or remove duplicate files"),
		)
	}
	return matches[0]
}

func (r *Resolver) matching(dir, ext string, id tomoid.TomogramID) ([]string, error) {
	candidates, err := Candidates(dir, ext)
	if err != nil {
		return nil, err
	}
	matcher := r.Matcher
	if matcher == nil {
		matcher = tomoid.NewDefaultMatcher(nil)
	}
	var matches []string
	for _, path := range candidates {
		if matcher.Match(path, id) {
			matches = append(matches, path)
		}
	}
	return matches, nil
}

// Candidates lists regular files in dir whose extension equals ext (case
// insensitive), sorted by name.
func Candidates(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		if entry.Type()&fs.ModeType != 0 && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ScanIDs extracts the distinct identifiers of every ext file in dir, in file
// name order. Files without a recognizable identifier are logged and skipped.
func ScanIDs(ctx context.Context, dir, ext string, matcher *tomoid.Matcher, logger *slog.Logger) ([]tomoid.TomogramID, error) {
	if matcher == nil {
		matcher = tomoid.NewDefaultMatcher(nil)
	}
	candidates, err := Candidates(dir, ext)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "collect", "scan", dir, err)
	}
	logger = logging.WithContext(services.WithStep(ctx, "collect"), logger)

	seen := make(map[tomoid.TomogramID]struct{}, len(candidates))
	ids := make([]tomoid.TomogramID, 0, len(candidates))
	for _, path := range candidates {
		id, err := matcher.Extract(path)
		if err != nil {
			logging.WarnWithContext(logger, "skipping file without identifier", "unrecognized_identifier",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is not scheduled"),
			)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
