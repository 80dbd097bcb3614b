package scanner

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/dl-alexandre/docsync/internal/sync/exclude"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/spf13/afero"
)

// ScanLocal walks root and returns every non-excluded file and directory
// keyed by slash-separated relative path. A file whose size and mtime match
// its snapshot entry reuses the recorded checksum instead of being re-read.
func ScanLocal(ctx context.Context, fs afero.Fs, root string, matcher *exclude.Matcher, validator *integrity.Validator, prev map[string]types.SnapshotEntry) (map[string]types.LocalNode, error) {
	entries := make(map[string]types.LocalNode)

	err := afero.Walk(fs, root, func(current string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if matcher != nil && matcher.IsExcluded(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			entries[rel] = types.LocalNode{
				RelativePath: rel,
				AbsPath:      current,
				IsDir:        true,
				ModifiedAt:   info.ModTime(),
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		modTime := info.ModTime().UnixNano()
		checksum := ""
		if entry, ok := prev[rel]; ok && !entry.IsDir && entry.Checksum != "" &&
			entry.LocalSize == info.Size() && entry.LocalModTime == modTime {
			checksum = entry.Checksum
		} else {
			checksum, err = validator.ComputeFile(fs, current)
			if err != nil {
				return err
			}
		}

		entries[rel] = types.LocalNode{
			RelativePath: rel,
			AbsPath:      current,
			Size:         info.Size(),
			Checksum:     checksum,
			ModifiedAt:   info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
