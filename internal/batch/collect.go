package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tmbatch/internal/fileset"
	"tmbatch/internal/fileutil"
	"tmbatch/internal/logging"
	"tmbatch/internal/services"
	"tmbatch/internal/tomoid"
)

// CollectOptions selects where identifiers come from. ListFile wins over
// VolumeDir when both are set.
type CollectOptions struct {
	ListFile  string
	VolumeDir string
	Matcher   *tomoid.Matcher
	Logger    *slog.Logger
}

// Collect returns the de-duplicated identifiers to process, in list order or
// volume file name order.
func Collect(ctx context.Context, opts CollectOptions) ([]tomoid.TomogramID, error) {
	var (
		ids []tomoid.TomogramID
		err error
	)
	if strings.TrimSpace(opts.ListFile) != "" {
		ids, err = readIDList(opts.ListFile)
	} else {
		ids, err = fileset.ScanIDs(ctx, opts.VolumeDir, fileset.VolumeExt, opts.Matcher, opts.Logger)
		ids = dropUnsafe(ctx, ids, opts.Logger)
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		source := opts.VolumeDir
		if opts.ListFile != "" {
			source = opts.ListFile
		}
		return nil, services.Wrap(services.ErrConfiguration, "collect", "", "no tomograms found in "+source, nil)
	}
	logging.WithContext(services.WithStep(ctx, "collect"), opts.Logger).Info("tomograms collected",
		logging.Int("count", len(ids)),
		logging.Any("tomograms", idStrings(ids)),
	)
	return ids, nil
}

func readIDList(path string) ([]tomoid.TomogramID, error) {
	lines, err := fileutil.ReadLines(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "collect", "read list", path, err)
	}
	seen := make(map[tomoid.TomogramID]struct{}, len(lines))
	ids := make([]tomoid.TomogramID, 0, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		id := tomoid.Normalize(line)
		if err := checkToken(id); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "collect", "read list",
				fmt.Sprintf("%s entry %d", path, i+1), err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// dropUnsafe removes scanned identifiers that checkToken rejects. A list
// file entry of the same kind aborts the run; a stray volume name only costs
// its own tomogram.
func dropUnsafe(ctx context.Context, ids []tomoid.TomogramID, logger *slog.Logger) []tomoid.TomogramID {
	kept := ids[:0]
	for _, id := range ids {
		if err := checkToken(id); err != nil {
			logging.WarnWithContext(logging.WithContext(services.WithStep(ctx, "collect"), logger),
				"skipping volume with unusable identifier", "unsafe_identifier",
				logging.String("tomogram_id", id.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "tomogram is not scheduled"),
			)
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// checkToken rejects identifiers that cannot name an output directory or a
// job.
func checkToken(id tomoid.TomogramID) error {
	s := id.String()
	switch {
	case s == "." || s == "..":
		return fmt.Errorf("identifier %q is not a valid name", s)
	case strings.ContainsAny(s, "/\\"):
		return fmt.Errorf("identifier %q contains a path separator", s)
	case strings.ContainsAny(s, " \t'\""):
		return fmt.Errorf("identifier %q contains whitespace or quotes", s)
	}
	return nil
}

func idStrings(ids []tomoid.TomogramID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
