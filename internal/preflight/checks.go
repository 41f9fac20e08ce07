package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckReadableFile verifies that path is an existing, readable regular file.
func CheckReadableFile(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(info.Size())))}
}

// CheckOutputDirectory verifies that path, or its nearest existing ancestor
// when path has not been created yet, is writable.
func CheckOutputDirectory(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	existing := nearestExisting(path)
	if existing == path {
		return CheckDirectoryAccess(name, path)
	}
	res := CheckDirectoryAccess(name, existing)
	if res.Passed {
		res.Detail = fmt.Sprintf("%s (will be created under %s)", path, existing)
	}
	return res
}

func nearestExisting(path string) string {
	current := filepath.Clean(path)
	for {
		if _, err := os.Stat(current); err == nil || !errors.Is(err, os.ErrNotExist) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}

// CheckFreeSpace warns when the filesystem holding path has less than
// minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	target := nearestExisting(path)
	var stat unix.Statfs_t
	if err := unix.Statfs(target, &stat); err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (error: statfs: %v)", target, err)}
	}
	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.Bytes(free), target)
	if free < minBytes {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (below %s)", detail, humanize.Bytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: detail}
}
