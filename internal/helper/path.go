package helper

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var ErrEmptyTarget = errors.New("target is empty")

// NormalizeTarget turns a bare domain ("example.com") or a URL into the base
// URL scans run against. Bare domains default to https.
func NormalizeTarget(target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrEmptyTarget
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target %q: unsupported scheme %q", target, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid target %q: missing host", target)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// JoinPath returns base with p as its path, keeping scheme and host.
func JoinPath(base *url.URL, p string) string {
	joined := *base
	joined.Path = path.Join("/", base.Path, p)
	return joined.String()
}
