package helper

import (
	"log"
	"os"
	"strings"
)

var mkdirAll = os.MkdirAll

// EnsureDir makes sure given directory exists
func EnsureDir(dir string) error {
	if err := mkdirAll(dir, 0o755); err != nil {
		log.Printf("[helper] failed to create dir %s: %v", dir, err)
		return err
	}
	return nil
}

// SanitizeFilename makes a domain or URL safe for use as filename
func SanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "unknown"
	}
	r := strings.NewReplacer(
		"://", "_",
		":", "_",
		"/", "_",
		"\\", "_",
		"?", "_",
		"&", "_",
		"=", "_",
		" ", "_",
		"*", "_",
	)
	return strings.Trim(r.Replace(filename), "_")
}
