package model

import (
	"net/http"
	"time"
)

type ScanRequest struct {
	Domain string `json:"domain" binding:"required"`
}

type ScanStartResponse struct {
	Message string `json:"message"`
	ScanID  string `json:"scanId"`
}

// ScanStatus is the record polled by clients. Results always holds the most
// recent successful scan, so it may belong to an earlier run than ScanID.
type ScanStatus struct {
	IsRunning   bool        `json:"isRunning"`
	Progress    int         `json:"progress"`
	CurrentTask string      `json:"currentTask"`
	Results     *ScanResult `json:"results"`

	ScanID     string     `json:"scanId,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	LastError  *ScanError `json:"lastError,omitempty"`
}

type ScanPhase string

const (
	PhaseToken ScanPhase = "token"
	PhaseScan  ScanPhase = "scan"
)

// ScanError describes why a scan run stopped before completion.
type ScanError struct {
	Phase   ScanPhase `json:"phase"`
	Message string    `json:"message"`
}

func (e *ScanError) Error() string {
	return string(e.Phase) + ": " + e.Message
}

type ScanResult struct {
	Target          string           `json:"target"`
	ScannedAt       time.Time        `json:"scannedAt"`
	ExtractedEmails []string         `json:"extractedEmails"`
	Findings        []Finding        `json:"findings"`
	Summary         map[Severity]int `json:"summary"`
	ReportFile      string           `json:"reportFile,omitempty"`
}

// Clone returns a deep copy of r.
func (r *ScanResult) Clone() *ScanResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExtractedEmails != nil {
		c.ExtractedEmails = append([]string(nil), r.ExtractedEmails...)
	}
	if r.Findings != nil {
		c.Findings = append([]Finding(nil), r.Findings...)
	}
	if r.Summary != nil {
		c.Summary = make(map[Severity]int, len(r.Summary))
		for k, v := range r.Summary {
			c.Summary[k] = v
		}
	}
	return &c
}

type Finding struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Endpoint string   `json:"endpoint,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	CWE      string   `json:"cwe,omitempty"`
}

// TokenContext is what the token phase hands to the testing phase.
type TokenContext struct {
	BaseURL    string            `json:"baseUrl"`
	Cookies    []*http.Cookie    `json:"-"`
	CSRFTokens map[string]string `json:"csrfTokens"`
	JWTs       []string          `json:"jwts"`

	// landing page captured while collecting tokens
	StatusCode int         `json:"-"`
	Header     http.Header `json:"-"`
	Body       []byte      `json:"-"`
}
