// Package engine is the scan engine behind the lifecycle controller: it
// collects the target's authentication context, runs the vulnerability
// checks and writes the report file.
package engine

import (
	"time"

	"github.com/jimmy443dd/S-675-Scrapper/internal/config"
)

type Options struct {
	RequestTimeout time.Duration
	RateLimit      float64
	MaxRetries     uint64
	UserAgent      string
	SensitivePaths []string
	CWEMap         string
}

func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		MaxRetries:     cfg.MaxRetries,
		UserAgent:      cfg.UserAgent,
		SensitivePaths: cfg.SensitivePaths,
		CWEMap:         cfg.CWEMap,
	}
}
