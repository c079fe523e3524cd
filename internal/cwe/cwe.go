package cwe

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

//go:embed checks.csv
var defaultCSV string

type Map map[string]string // finding type -> CWE id

var (
	defaultOnce sync.Once
	defaultMap  Map
)

// Default returns the catalogue bundled with the binary.
func Default() Map {
	defaultOnce.Do(func() {
		m, err := Parse(strings.NewReader(defaultCSV))
		if err != nil {
			log.Printf("[cwe] bundled catalogue is invalid: %v", err)
			m = Map{}
		}
		defaultMap = m
	})
	return defaultMap
}

func LoadMap(path string) (Map, error) {
	file, err := os.Open(path)
	if err != nil {
		log.Printf("[LoadMap] open cwe map '%s': %v", path, err)
		return nil, errors.New("failed to read cwe map file")
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads CSV with columns: type,cwe. The first row is a header.
func Parse(r io.Reader) (Map, error) {
	reader := csv.NewReader(r)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse cwe csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("cwe csv is empty")
	}

	out := make(Map)
	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		id := strings.TrimSpace(record[1])
		if name == "" {
			continue
		}
		out[strings.ToLower(name)] = id
	}
	return out, nil
}

// Lookup returns "CWE-<id>" for the finding type, or "" when unknown.
func (m Map) Lookup(findingType string) string {
	if m == nil {
		return ""
	}
	id := m[strings.ToLower(strings.TrimSpace(findingType))]
	if id == "" || id == "0" {
		return ""
	}
	return "CWE-" + id
}
