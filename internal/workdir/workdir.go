// Package workdir resolves the directory holding the .attendx store, walking
// up from the working directory and following .attendx-root redirect files.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	storeDir = ".attendx"
	rootFile = ".attendx-root"
)

// ResolveBaseDir walks from start towards the filesystem root and returns the
// first directory that holds a .attendx store or a .attendx-root file. A
// .attendx-root file contains the path of the directory to use instead;
// relative paths are resolved against the file's directory. When neither
// marker is found the original start directory is returned.
func ResolveBaseDir(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}

	for dir := abs; ; {
		if target, ok := readRootFile(dir); ok {
			return target
		}
		if info, err := os.Stat(filepath.Join(dir, storeDir)); err == nil && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// readRootFile returns the redirect target in dir, if any
func readRootFile(dir string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(dir, rootFile))
	if err != nil {
		return "", false
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return filepath.Clean(target), true
}
