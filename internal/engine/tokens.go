package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/jimmy443dd/S-675-Scrapper/internal/helper"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

var jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]{4,}\.eyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]*`)

// TokenManager fetches the landing page of a target and collects everything
// that looks like authentication state: cookies, CSRF tokens and JWTs.
type TokenManager struct {
	client *Client
}

func NewTokenManager(client *Client) *TokenManager {
	return &TokenManager{client: client}
}

func (m *TokenManager) ObtainTokens(ctx context.Context, domain string) (*model.TokenContext, error) {
	base, err := helper.NormalizeTarget(domain)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Get(ctx, base.String(), nil)
	if err != nil && !strings.Contains(domain, "://") {
		// bare domain, https did not answer
		log.Printf("[ObtainTokens] https failed for %s, retrying over http: %v", domain, err)
		base.Scheme = "http"
		resp, err = m.client.Get(ctx, base.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", base.String(), err)
	}

	tokens := &model.TokenContext{
		BaseURL:    base.String(),
		Cookies:    resp.Cookies,
		CSRFTokens: make(map[string]string),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}

	for name, value := range csrfFromHTML(resp.Body) {
		tokens.CSRFTokens[name] = value
	}
	for _, cookie := range resp.Cookies {
		if isCSRFName(cookie.Name) {
			tokens.CSRFTokens[cookie.Name] = cookie.Value
		}
	}

	tokens.JWTs = collectJWTs(resp)

	log.Printf("[ObtainTokens] %s: status %d, %d cookies, %d csrf tokens, %d jwts",
		tokens.BaseURL, resp.StatusCode, len(tokens.Cookies), len(tokens.CSRFTokens), len(tokens.JWTs))
	return tokens, nil
}

func isCSRFName(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "csrf") ||
		strings.Contains(name, "xsrf") ||
		name == "_token" ||
		name == "authenticity_token"
}

// csrfFromHTML reads <meta name="csrf-token" content=...> and hidden inputs
// whose name looks like a CSRF field.
func csrfFromHTML(body []byte) map[string]string {
	out := make(map[string]string)

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		token := tokenizer.Token()
		attrs := attrMap(token)
		switch token.Data {
		case "meta":
			if isCSRFName(attrs["name"]) && attrs["content"] != "" {
				out[attrs["name"]] = attrs["content"]
			}
		case "input":
			if strings.EqualFold(attrs["type"], "hidden") && isCSRFName(attrs["name"]) {
				out[attrs["name"]] = attrs["value"]
			}
		}
	}
}

func attrMap(token html.Token) map[string]string {
	attrs := make(map[string]string, len(token.Attr))
	for _, a := range token.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return attrs
}

func collectJWTs(resp *Response) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(s string) {
		for _, match := range jwtPattern.FindAllString(s, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, match)
		}
	}

	for _, cookie := range resp.Cookies {
		add(cookie.Value)
	}
	for _, values := range resp.Header {
		for _, v := range values {
			add(v)
		}
	}
	add(string(resp.Body))

	return out
}
