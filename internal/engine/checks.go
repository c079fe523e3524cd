package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jimmy443dd/S-675-Scrapper/internal/helper"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

const probeOrigin = "https://scansuite-probe.invalid"

var versionPattern = regexp.MustCompile(`\d+\.\d+`)

type securityHeader struct {
	name      string
	finding   string
	severity  model.Severity
	httpsOnly bool
}

var securityHeaders = []securityHeader{
	{name: "Strict-Transport-Security", finding: "Missing Strict-Transport-Security", severity: model.SeverityMedium, httpsOnly: true},
	{name: "Content-Security-Policy", finding: "Missing Content-Security-Policy", severity: model.SeverityMedium},
	{name: "X-Frame-Options", finding: "Missing X-Frame-Options", severity: model.SeverityLow},
	{name: "X-Content-Type-Options", finding: "Missing X-Content-Type-Options", severity: model.SeverityLow},
}

func checkTransport(base *url.URL) []model.Finding {
	if base.Scheme == "https" {
		return nil
	}
	return []model.Finding{{
		Type:     "Cleartext Transport",
		Severity: model.SeverityMedium,
		Endpoint: base.String(),
		Detail:   "target is served over plain http",
	}}
}

func checkHeaders(base *url.URL, header http.Header) []model.Finding {
	var findings []model.Finding

	for _, h := range securityHeaders {
		if h.httpsOnly && base.Scheme != "https" {
			continue
		}
		if header.Get(h.name) != "" {
			continue
		}
		// frame-ancestors supersedes X-Frame-Options
		if h.name == "X-Frame-Options" && strings.Contains(header.Get("Content-Security-Policy"), "frame-ancestors") {
			continue
		}
		findings = append(findings, model.Finding{
			Type:     h.finding,
			Severity: h.severity,
			Endpoint: base.String(),
			Detail:   h.name + " header is not set",
		})
	}

	for _, name := range []string{"Server", "X-Powered-By"} {
		if v := header.Get(name); v != "" && versionPattern.MatchString(v) {
			findings = append(findings, model.Finding{
				Type:     "Server Version Disclosure",
				Severity: model.SeverityLow,
				Endpoint: base.String(),
				Detail:   fmt.Sprintf("%s: %s", name, v),
			})
		}
	}

	return findings
}

func checkCookies(base *url.URL, cookies []*http.Cookie) []model.Finding {
	var findings []model.Finding

	for _, c := range cookies {
		if base.Scheme == "https" && !c.Secure {
			findings = append(findings, model.Finding{
				Type:     "Insecure Cookie",
				Severity: model.SeverityMedium,
				Endpoint: base.String(),
				Detail:   fmt.Sprintf("cookie %q is missing the Secure flag", c.Name),
			})
		}
		if !c.HttpOnly {
			findings = append(findings, model.Finding{
				Type:     "Cookie Without HttpOnly",
				Severity: model.SeverityLow,
				Endpoint: base.String(),
				Detail:   fmt.Sprintf("cookie %q is readable from scripts", c.Name),
			})
		}
		// a cookie without the attribute parses to the zero value, not SameSiteDefaultMode
		if c.SameSite == 0 || c.SameSite == http.SameSiteDefaultMode || (c.SameSite == http.SameSiteNoneMode && !c.Secure) {
			findings = append(findings, model.Finding{
				Type:     "Cookie Without SameSite",
				Severity: model.SeverityLow,
				Endpoint: base.String(),
				Detail:   fmt.Sprintf("cookie %q has no effective SameSite attribute", c.Name),
			})
		}
	}

	return findings
}

func checkJWTs(base *url.URL, tokens []string) []model.Finding {
	var findings []model.Finding
	parser := jwt.NewParser()

	for _, raw := range tokens {
		claims := jwt.MapClaims{}
		token, _, err := parser.ParseUnverified(raw, claims)
		if err != nil {
			log.Printf("[checkJWTs] skipping unparsable token: %v", err)
			continue
		}

		if alg, _ := token.Header["alg"].(string); strings.EqualFold(alg, "none") {
			findings = append(findings, model.Finding{
				Type:     "JWT None Algorithm",
				Severity: model.SeverityCritical,
				Endpoint: base.String(),
				Detail:   "token is issued with alg=none and carries no signature",
			})
		}

		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			findings = append(findings, model.Finding{
				Type:     "JWT Without Expiry",
				Severity: model.SeverityMedium,
				Endpoint: base.String(),
				Detail:   "token has no exp claim",
			})
		}
	}

	return findings
}

func (s *Scanner) checkCORS(ctx context.Context, base *url.URL) []model.Finding {
	header := http.Header{}
	header.Set("Origin", probeOrigin)

	resp, err := s.client.Get(ctx, base.String(), header)
	if err != nil {
		log.Printf("[checkCORS] request failed: %v", err)
		return nil
	}

	allowOrigin := resp.Header.Get("Access-Control-Allow-Origin")
	allowCreds := strings.EqualFold(resp.Header.Get("Access-Control-Allow-Credentials"), "true")

	switch {
	case allowOrigin == probeOrigin:
		severity := model.SeverityHigh
		if allowCreds {
			severity = model.SeverityCritical
		}
		return []model.Finding{{
			Type:     "CORS Origin Reflection",
			Severity: severity,
			Endpoint: base.String(),
			Detail:   fmt.Sprintf("arbitrary origin reflected (credentials allowed: %t)", allowCreds),
		}}
	case allowOrigin == "*" && allowCreds:
		return []model.Finding{{
			Type:     "CORS Wildcard With Credentials",
			Severity: model.SeverityMedium,
			Endpoint: base.String(),
			Detail:   "wildcard origin combined with Access-Control-Allow-Credentials",
		}}
	}
	return nil
}

// checkSensitivePaths requests well known leak locations. Responses equal to
// the landing page are ignored, single page apps answer every path with it.
func (s *Scanner) checkSensitivePaths(ctx context.Context, base *url.URL, landing []byte) ([]model.Finding, [][]byte) {
	var (
		findings []model.Finding
		bodies   [][]byte
	)

	for _, p := range s.opts.SensitivePaths {
		endpoint := helper.JoinPath(base, p)

		resp, err := s.client.Get(ctx, endpoint, nil)
		if err != nil {
			log.Printf("[checkSensitivePaths] %s: %v", endpoint, err)
			continue
		}
		if resp.StatusCode != http.StatusOK || len(bytes.TrimSpace(resp.Body)) == 0 {
			continue
		}
		if bytes.Equal(resp.Body, landing) {
			continue
		}
		bodies = append(bodies, resp.Body)

		finding := model.Finding{
			Type:     "Sensitive File Exposure",
			Severity: model.SeverityMedium,
			Endpoint: endpoint,
			Detail:   fmt.Sprintf("%s is publicly readable", p),
		}
		switch {
		case strings.HasSuffix(p, ".git/HEAD"):
			if !bytes.HasPrefix(resp.Body, []byte("ref:")) {
				continue
			}
			finding.Type = "Git Repository Exposure"
			finding.Severity = model.SeverityCritical
		case strings.HasSuffix(p, ".env"):
			if !bytes.Contains(resp.Body, []byte("=")) {
				continue
			}
			finding.Type = "Environment File Exposure"
			finding.Severity = model.SeverityCritical
		}
		findings = append(findings, finding)
	}

	return findings, bodies
}
