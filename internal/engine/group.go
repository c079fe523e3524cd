package engine

import (
	"fmt"

	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

type findingKey struct {
	endpoint string
	cwe      string
	typ      string
}

// dedupe collapses findings reported more than once for the same endpoint,
// CWE and type, for example two JWTs with the same weakness. The first
// occurrence wins and its detail gets a repeat count.
func dedupe(findings []model.Finding) []model.Finding {
	counts := make(map[findingKey]int, len(findings))
	out := make([]model.Finding, 0, len(findings))
	index := make(map[findingKey]int, len(findings))

	for _, f := range findings {
		key := findingKey{endpoint: f.Endpoint, cwe: f.CWE, typ: f.Type}
		counts[key]++
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(out)
		out = append(out, f)
	}

	for key, n := range counts {
		if n > 1 {
			f := &out[index[key]]
			f.Detail = fmt.Sprintf("%s (reported %d times)", f.Detail, n)
		}
	}
	return out
}
