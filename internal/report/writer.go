package report

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jimmy443dd/S-675-Scrapper/internal/helper"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

// Timestamp layout used as report name prefix. Fixed width, so lexicographic
// order equals chronological order.
const nameLayout = "20060102T150405.000Z"

var (
	now = time.Now
)

type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string {
	return w.dir
}

// Name returns the report file name for a scan of target finished at t.
func Name(target string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", t.UTC().Format(nameLayout), helper.SanitizeFilename(target), reportExt)
}

// Write stores result as a JSON report and returns the file name. The file is
// written under a temporary name and renamed, so a concurrent ResolveLatest
// never picks up a half-written report.
func (w *Writer) Write(result *model.ScanResult) (string, error) {
	if err := helper.EnsureDir(w.dir); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	name := Name(result.Target, now())
	result.ReportFile = name

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}

	final := filepath.Join(w.dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("rename report: %w", err)
	}

	log.Printf("[report] report saved to %s", final)
	return name, nil
}
