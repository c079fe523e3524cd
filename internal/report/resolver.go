package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reportExt = ".json"

// ErrNoReports is returned when the reports directory holds no report files.
var ErrNoReports = errors.New("no reports found")

var (
	readDir = os.ReadDir
)

type Artifact struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

func isReportFile(name string) bool {
	return strings.HasSuffix(name, reportExt) && !strings.HasPrefix(name, ".")
}

// ResolveLatest picks the lexicographically greatest report name in dir.
// This is only "latest" when names sort chronologically, which holds for
// files produced by Writer. A missing directory counts as empty.
func ResolveLatest(dir string) (Artifact, error) {
	entries, err := readDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, ErrNoReports
		}
		return Artifact{}, fmt.Errorf("read reports dir: %w", err)
	}

	var latest fs.DirEntry
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !isReportFile(entry.Name()) {
			continue
		}
		if latest == nil || entry.Name() > latest.Name() {
			latest = entry
		}
	}

	if latest == nil {
		return Artifact{}, ErrNoReports
	}

	artifact := Artifact{
		Name: latest.Name(),
		Path: filepath.Join(dir, latest.Name()),
	}
	if info, err := latest.Info(); err == nil {
		artifact.Size = info.Size()
		artifact.ModTime = info.ModTime()
	}
	return artifact, nil
}
