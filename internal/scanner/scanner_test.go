package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmy443dd/S-675-Scrapper/internal/metrics"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
	"github.com/jimmy443dd/S-675-Scrapper/internal/store"
)

type fakeTokens struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	entered chan struct{}
	err     error
	panic   bool
	done    atomic.Bool
}

func (f *fakeTokens) ObtainTokens(ctx context.Context, domain string) (*model.TokenContext, error) {
	f.mu.Lock()
	f.calls = append(f.calls, domain)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panic {
		panic("token manager exploded")
	}
	f.done.Store(true)
	if f.err != nil {
		return nil, f.err
	}
	return &model.TokenContext{BaseURL: "https://" + domain}, nil
}

type fakeTester struct {
	tokens      *fakeTokens
	calls       atomic.Int32
	sawTokens   *model.TokenContext
	tokensFirst bool
	result      *model.ScanResult
	err         error
}

func (f *fakeTester) RunAllTests(ctx context.Context, domain string, tokens *model.TokenContext) (*model.ScanResult, error) {
	f.calls.Add(1)
	f.sawTokens = tokens
	if f.tokens != nil {
		f.tokensFirst = f.tokens.done.Load()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.ScanResult{Target: tokens.BaseURL}, nil
}

func setup(t *testing.T, tokens *fakeTokens, tester Tester) (*Controller, *store.Store) {
	t.Helper()

	defaultScanID := newScanID
	t.Cleanup(func() { newScanID = defaultScanID })

	var n atomic.Int32
	newScanID = func() string {
		return "scan-" + string(rune('0'+n.Add(1)))
	}

	m, err := metrics.New()
	require.NoError(t, err)

	st := store.New()
	return NewController(st, tokens, tester, WithMetrics(m)), st
}

func TestStartScanCompletes(t *testing.T) {
	tokens := &fakeTokens{}
	tester := &fakeTester{tokens: tokens, result: &model.ScanResult{
		Target:          "https://example.com",
		ExtractedEmails: []string{"a@example.com"},
	}}
	c, st := setup(t, tokens, tester)

	id, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", id)

	c.Wait()

	snap := st.Snapshot()
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, TaskComplete, snap.CurrentTask)
	assert.Equal(t, tester.result, snap.Results)
	assert.Nil(t, snap.LastError)
	assert.Equal(t, "scan-1", snap.ScanID)
}

func TestStartScanPhaseOrdering(t *testing.T) {
	tokens := &fakeTokens{}
	tester := &fakeTester{tokens: tokens}
	c, _ := setup(t, tokens, tester)

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, []string{"example.com"}, tokens.calls)
	assert.True(t, tester.tokensFirst, "token phase must finish before tests start")
	require.NotNil(t, tester.sawTokens)
	assert.Equal(t, "https://example.com", tester.sawTokens.BaseURL)
}

func TestStartScanRejectsWhileRunning(t *testing.T) {
	tokens := &fakeTokens{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	tester := &fakeTester{}
	c, st := setup(t, tokens, tester)

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	<-tokens.entered

	running := st.Snapshot()
	assert.True(t, running.IsRunning)
	assert.Equal(t, TaskObtainingTokens, running.CurrentTask)

	_, err = c.StartScan(context.Background(), "other.com")
	assert.ErrorIs(t, err, ErrScanAlreadyRunning)
	assert.Equal(t, running, st.Snapshot(), "rejected start must not touch the status")

	close(tokens.release)
	c.Wait()

	tokens.entered = nil
	tokens.release = nil
	_, err = c.StartScan(context.Background(), "other.com")
	require.NoError(t, err, "scan must be accepted after release")
	c.Wait()
}

func TestStartScanConcurrentSingleWinner(t *testing.T) {
	tokens := &fakeTokens{release: make(chan struct{})}
	tester := &fakeTester{}
	c, _ := setup(t, tokens, tester)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.StartScan(context.Background(), "example.com")
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrScanAlreadyRunning):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	close(tokens.release)
	c.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(31), rejected.Load())
}

func TestStartScanTokenFailureSkipsTests(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("target unreachable")}
	tester := &fakeTester{}
	c, st := setup(t, tokens, tester)

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, int32(0), tester.calls.Load())

	snap := st.Snapshot()
	assert.False(t, snap.IsRunning)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, "Error: target unreachable", snap.CurrentTask)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, model.PhaseToken, snap.LastError.Phase)
	assert.Nil(t, snap.Results)
}

func TestFailedScanKeepsPreviousResults(t *testing.T) {
	tokens := &fakeTokens{}
	tester := &fakeTester{result: &model.ScanResult{Target: "https://example.com"}}
	c, st := setup(t, tokens, tester)

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()
	previous := st.Snapshot().Results
	require.NotNil(t, previous)

	tester.err = errors.New("scanner crashed")
	_, err = c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()

	snap := st.Snapshot()
	assert.Equal(t, previous, snap.Results)
	assert.Equal(t, "Error: scanner crashed", snap.CurrentTask)
	assert.Equal(t, 0, snap.Progress, "progress is reset when the run is accepted")
	require.NotNil(t, snap.LastError)
	assert.Equal(t, model.PhaseScan, snap.LastError.Phase)
}

func TestStartScanNilResultIsFailure(t *testing.T) {
	c, st := setup(t, &fakeTokens{}, &nilTester{})

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()

	snap := st.Snapshot()
	assert.False(t, snap.IsRunning)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, model.PhaseScan, snap.LastError.Phase)
}

type nilTester struct{}

func (nilTester) RunAllTests(context.Context, string, *model.TokenContext) (*model.ScanResult, error) {
	return nil, nil
}

func TestStartScanPanicReleasesGuard(t *testing.T) {
	tokens := &fakeTokens{panic: true}
	c, st := setup(t, tokens, &fakeTester{})

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	c.Wait()

	snap := st.Snapshot()
	assert.False(t, snap.IsRunning)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "token manager exploded")
}

func TestStartScanEmptyDomain(t *testing.T) {
	tokens := &fakeTokens{}
	c, st := setup(t, tokens, &fakeTester{})

	_, err := c.StartScan(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidDomain)
	assert.False(t, st.Snapshot().IsRunning)
	assert.Empty(t, tokens.calls)
}

func TestStartScanOutlivesRequestContext(t *testing.T) {
	tokens := &fakeTokens{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, st := setup(t, tokens, &fakeTester{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.StartScan(ctx, "example.com")
	require.NoError(t, err)
	<-tokens.entered
	cancel()

	close(tokens.release)

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish")
	}

	assert.Equal(t, 100, st.Snapshot().Progress)
}

func TestWaitTimeoutBoundsInFlightScan(t *testing.T) {
	tokens := &fakeTokens{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, st := setup(t, tokens, &fakeTester{})

	_, err := c.StartScan(context.Background(), "example.com")
	require.NoError(t, err)
	<-tokens.entered

	assert.False(t, c.WaitTimeout(50*time.Millisecond), "scan is still blocked in the token phase")
	assert.True(t, st.Snapshot().IsRunning)

	close(tokens.release)
	assert.True(t, c.WaitTimeout(5*time.Second))
	assert.False(t, st.Snapshot().IsRunning)
}
