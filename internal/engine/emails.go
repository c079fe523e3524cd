package engine

import (
	"bytes"
	"encoding/hex"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const emailExpr = `[A-Za-z0-9._+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,24}`

var (
	emailPattern = regexp.MustCompile(emailExpr)
	emailExact   = regexp.MustCompile(`^` + emailExpr + `$`)
)

// emailCollector keeps addresses in first-seen order, case-insensitively unique.
type emailCollector struct {
	seen   map[string]struct{}
	emails []string
}

func newEmailCollector() *emailCollector {
	return &emailCollector{seen: make(map[string]struct{})}
}

func (c *emailCollector) add(email string) {
	email = strings.Trim(strings.TrimSpace(email), ".")
	if !emailExact.MatchString(email) {
		return
	}
	// asset names like logo@2x.png match the pattern too
	lower := strings.ToLower(email)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"} {
		if strings.HasSuffix(lower, ext) {
			return
		}
	}
	if _, ok := c.seen[lower]; ok {
		return
	}
	c.seen[lower] = struct{}{}
	c.emails = append(c.emails, email)
}

// scan picks up mailto: links first, then any address in the raw text.
func (c *emailCollector) scan(body []byte) {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokenizer.Token()
		if token.Data != "a" {
			continue
		}
		href := attrMap(token)["href"]
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			continue
		}
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		for _, a := range strings.Split(addr, ",") {
			// "Support Team <support@example.com>"
			if parsed, err := mail.ParseAddress(a); err == nil {
				a = parsed.Address
			}
			c.add(a)
		}
	}

	for _, match := range emailPattern.FindAll(percentDecode(body), -1) {
		c.add(string(match))
	}
}

// percentDecode decodes valid %XX escapes and leaves everything else as is,
// so "%3Cops@example.com%3E" yields a clean address for the raw scan.
func percentDecode(b []byte) []byte {
	if bytes.IndexByte(b, '%') < 0 {
		return b
	}

	out := make([]byte, 0, len(b))
	var decoded [1]byte
	for i := 0; i < len(b); i++ {
		if b[i] == '%' && i+2 < len(b) {
			if _, err := hex.Decode(decoded[:], b[i+1:i+3]); err == nil {
				out = append(out, decoded[0])
				i += 2
				continue
			}
		}
		out = append(out, b[i])
	}
	return out
}

func (c *emailCollector) list() []string {
	if c.emails == nil {
		return []string{}
	}
	return c.emails
}
