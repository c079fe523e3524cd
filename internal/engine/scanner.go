package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"time"

	"github.com/jimmy443dd/S-675-Scrapper/internal/cwe"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

// ReportWriter persists a finished result and returns the report file name.
type ReportWriter interface {
	Write(result *model.ScanResult) (string, error)
}

// Scanner runs every check against a target using the context collected by
// the TokenManager, then writes the report.
type Scanner struct {
	client *Client
	opts   Options
	cwes   cwe.Map
	writer ReportWriter
}

var now = time.Now

func NewScanner(client *Client, opts Options, writer ReportWriter) *Scanner {
	return &Scanner{
		client: client,
		opts:   opts,
		cwes:   loadCWEs(opts.CWEMap),
		writer: writer,
	}
}

func loadCWEs(path string) cwe.Map {
	if path == "" {
		return cwe.Default()
	}
	m, err := cwe.LoadMap(path)
	if err != nil {
		log.Printf("[loadCWEs] falling back to bundled catalogue: %v", err)
		return cwe.Default()
	}
	return m
}

func (s *Scanner) RunAllTests(ctx context.Context, domain string, tokens *model.TokenContext) (*model.ScanResult, error) {
	if tokens == nil {
		return nil, errors.New("no token context for " + domain)
	}
	base, err := url.Parse(tokens.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	log.Printf("[RunAllTests] testing %s", base)

	var findings []model.Finding
	findings = append(findings, checkTransport(base)...)
	findings = append(findings, checkHeaders(base, tokens.Header)...)
	findings = append(findings, checkCookies(base, tokens.Cookies)...)
	findings = append(findings, checkJWTs(base, tokens.JWTs)...)
	findings = append(findings, s.checkCORS(ctx, base)...)

	pathFindings, bodies := s.checkSensitivePaths(ctx, base, tokens.Body)
	findings = append(findings, pathFindings...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emails := newEmailCollector()
	emails.scan(tokens.Body)
	for _, body := range bodies {
		emails.scan(body)
	}
	if n := len(emails.list()); n > 0 {
		findings = append(findings, model.Finding{
			Type:     "Email Address Disclosure",
			Severity: model.SeverityInfo,
			Endpoint: base.String(),
			Detail:   fmt.Sprintf("%d email addresses found in public pages", n),
		})
	}

	result := &model.ScanResult{
		Target:          base.String(),
		ScannedAt:       now().UTC(),
		ExtractedEmails: emails.list(),
		Findings:        s.finalize(findings),
	}
	result.Summary = summarize(result.Findings)

	if s.writer != nil {
		if _, err := s.writer.Write(result); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	}

	log.Printf("[RunAllTests] %s: %d findings, %d emails", base, len(result.Findings), len(result.ExtractedEmails))
	return result, nil
}

// finalize annotates CWE ids, drops repeats and orders findings by severity, keeping check
// order within the same severity.
func (s *Scanner) finalize(findings []model.Finding) []model.Finding {
	if findings == nil {
		return []model.Finding{}
	}
	for i := range findings {
		findings[i].CWE = s.cwes.Lookup(findings[i].Type)
	}
	findings = dedupe(findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Score() > findings[j].Severity.Score()
	})
	return findings
}

func summarize(findings []model.Finding) map[model.Severity]int {
	summary := make(map[model.Severity]int, len(model.Severities))
	for _, sev := range model.Severities {
		summary[sev] = 0
	}
	for _, f := range findings {
		summary[f.Severity]++
	}
	return summary
}
