package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jimmy443dd/S-675-Scrapper/internal/metrics"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
	"github.com/jimmy443dd/S-675-Scrapper/internal/store"
	"github.com/jimmy443dd/S-675-Scrapper/internal/telemetry"
)

const (
	TaskObtainingTokens = "Obtaining authentication tokens..."
	TaskRunningTests    = "Running vulnerability tests..."
	TaskComplete        = "Scan complete!"
)

var (
	ErrScanAlreadyRunning = errors.New("scan already running")
	ErrInvalidDomain      = errors.New("domain is required")
)

// TokenProvider acquires the authentication context for a target.
type TokenProvider interface {
	ObtainTokens(ctx context.Context, domain string) (*model.TokenContext, error)
}

// Tester runs the vulnerability tests against a target.
type Tester interface {
	RunAllTests(ctx context.Context, domain string, tokens *model.TokenContext) (*model.ScanResult, error)
}

var newScanID = uuid.NewString

type Option func(*Controller)

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// Controller runs at most one scan at a time and reports its progress
// through the status store.
type Controller struct {
	store   *store.Store
	tokens  TokenProvider
	tester  Tester
	metrics *metrics.Collector
	tracer  trace.Tracer

	wg sync.WaitGroup
}

func NewController(st *store.Store, tokens TokenProvider, tester Tester, opts ...Option) *Controller {
	c := &Controller{
		store:  st,
		tokens: tokens,
		tester: tester,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartScan accepts a scan for domain and returns its ID right away; the
// pipeline keeps running in the background. ctx only carries request values
// such as the trace, its cancellation does not stop the scan.
func (c *Controller) StartScan(ctx context.Context, domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", ErrInvalidDomain
	}

	id := newScanID()
	if !c.store.TryBegin(id, domain) {
		log.Printf("[StartScan] rejected scan for %s: another scan is running", domain)
		c.metrics.ScanRejected()
		return "", ErrScanAlreadyRunning
	}
	c.metrics.ScanStarted()
	log.Printf("[StartScan] scan %s accepted for domain %s", id, domain)

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), id, domain)

	return id, nil
}

// Wait blocks until every accepted scan has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// WaitTimeout is Wait bounded by d. It reports whether every scan finished.
func (c *Controller) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func (c *Controller) run(ctx context.Context, id, domain string) {
	defer c.wg.Done()
	defer c.store.Release()

	ctx, span := telemetry.AddSpan(ctx, c.tracer, "scan",
		attribute.String("scan.id", id),
		attribute.String("scan.domain", domain),
	)
	defer span.End()

	var tokens *model.TokenContext
	err := c.phase(ctx, model.PhaseToken, TaskObtainingTokens, func(ctx context.Context) error {
		var err error
		tokens, err = c.tokens.ObtainTokens(ctx, domain)
		return err
	})
	if err != nil {
		c.fail(span, id, model.PhaseToken, err)
		return
	}

	var result *model.ScanResult
	err = c.phase(ctx, model.PhaseScan, TaskRunningTests, func(ctx context.Context) error {
		var err error
		result, err = c.tester.RunAllTests(ctx, domain, tokens)
		if err == nil && result == nil {
			err = errors.New("scanner returned no result")
		}
		return err
	})
	if err != nil {
		c.fail(span, id, model.PhaseScan, err)
		return
	}

	c.store.Complete(result, TaskComplete)
	c.metrics.ScanFinished(metrics.OutcomeCompleted, "", result)
	log.Printf("[run] scan %s complete: %d findings, %d emails", id, len(result.Findings), len(result.ExtractedEmails))
}

// phase runs fn once. A panic in fn is turned into an error so the running
// flag is still released.
func (c *Controller) phase(ctx context.Context, phase model.ScanPhase, task string, fn func(context.Context) error) (err error) {
	c.store.SetTask(task)
	log.Printf("[phase] %s: %s", phase, task)

	ctx, span := c.tracer.Start(ctx, "scan."+string(phase))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		c.metrics.PhaseDone(phase, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return fn(ctx)
}

func (c *Controller) fail(span trace.Span, id string, phase model.ScanPhase, err error) {
	log.Printf("[run] scan %s failed in %s phase: %v", id, phase, err)

	span.SetStatus(codes.Error, err.Error())
	c.store.Fail(&model.ScanError{Phase: phase, Message: err.Error()})
	c.metrics.ScanFinished(metrics.OutcomeFailed, phase, nil)
}
