package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sidecarSuffixes are the files SQLite keeps next to a database in WAL mode.
var sidecarSuffixes = []string{"-wal", "-shm"}

// DiskUsageBytes sums the on-disk footprint of the record database and the
// snapshot files. A file path also counts its SQLite -wal and -shm sidecars;
// a directory is summed recursively. Missing paths count as zero and a path
// given twice is counted once.
func DiskUsageBytes(paths ...string) (int64, error) {
	seen := make(map[string]struct{}, len(paths))
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if info.IsDir() {
			n, err := treeSize(p)
			if err != nil {
				return 0, err
			}
			total += n
			continue
		}
		total += info.Size()
		for _, suffix := range sidecarSuffixes {
			if side, err := os.Stat(p + suffix); err == nil && side.Mode().IsRegular() {
				total += side.Size()
			}
		}
	}
	return total, nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
