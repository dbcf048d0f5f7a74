package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/echosuppress"
	"github.com/cellsync/reconciler/internal/errkind"
	"github.com/cellsync/reconciler/internal/lock"
	"github.com/cellsync/reconciler/internal/store"
)

// DefaultFanout is the worker pool's default concurrency (spec §5).
const DefaultFanout = 5

// retryDelays implements spec §4.8's "3 attempts, exponential 1/2/4 s".
var retryDelays = [3]time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// maxPerMinute matches the outbound API quota spec §4.8 cites.
const maxPerMinute = 55

// EnvelopeDeadLetter records one job that exhausted its retry budget,
// mirroring the teacher's store.go EnvelopeDeadLetter.
type EnvelopeDeadLetter struct {
	JobID        string    `json:"jobId"`
	Address      string    `json:"address"`
	FailedAt     time.Time `json:"failedAt"`
	AttemptCount int       `json:"attemptCount"`
	LastError    string    `json:"lastError"`
}

// Stats mirrors the teacher's IngressStatus counters. They are read through
// Pool.Stats; the reconciler's /status payload does not include them.
type Stats struct {
	DedupedTotal    uint64 `json:"dedupedTotal"`
	SuppressedTotal uint64 `json:"suppressedTotal"`
	DeadLetterTotal uint64 `json:"deadLetterTotal"`
	ProcessedTotal  uint64 `json:"processedTotal"`
}

// RequestSyncFunc lets the pool trigger an outbound sync after a successful
// apply, per spec §4.8 step (v).
type RequestSyncFunc func(ctx context.Context)

// Pool is the bounded worker pool consuming Queue, applying each envelope to
// the store under lease protection, and recording dead letters. Grounded on
// the teacher's worker fan-out over fileEnvelopeQueue.Dequeue, generalized
// from a single webhook-delivery apply to the cell lock+echo-suppress+store
// write sequence spec §4.8 names.
type Pool struct {
	queue   *Queue
	locks   *lock.Service
	marks   *echosuppress.Marks
	store   store.Client
	limiter *windowLimiter
	sync    RequestSyncFunc
	fanout  int
	log     *logrus.Entry

	mu          sync.Mutex
	stats       Stats
	deadLetters []EnvelopeDeadLetter
	seen        map[string]seenEntry // dedupe window: address -> last value/time

	wg sync.WaitGroup
}

type seenEntry struct {
	value cell.Value
	at    time.Time
}

// dedupeWindow bounds how long an identical (address, value) edit is
// considered a duplicate rather than a fresh write, so a webhook retry
// doesn't double-apply. It is a fixed 2s, independent of the configured
// outbound debounce window.
const dedupeWindow = 2 * time.Second

// Options configures a Pool.
type Options struct {
	Fanout int
	Logger *logrus.Logger
}

// NewPool wires a Pool from its collaborators.
func NewPool(queue *Queue, locks *lock.Service, marks *echosuppress.Marks, storeClient store.Client, onSync RequestSyncFunc, opts Options) *Pool {
	fanout := opts.Fanout
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{
		queue:   queue,
		locks:   locks,
		marks:   marks,
		store:   storeClient,
		limiter: newWindowLimiter(maxPerMinute, time.Minute),
		sync:    onSync,
		fanout:  fanout,
		log:     logrus.NewEntry(logger).WithField("component", "jobqueue-worker"),
		seen:    map[string]seenEntry{},
	}
}

// Start launches the worker pool's goroutines. They exit when ctx is
// cancelled; callers should Wait afterward.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.fanout; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// DeadLetters returns every dead-lettered job recorded so far.
func (p *Pool) DeadLetters() []EnvelopeDeadLetter {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EnvelopeDeadLetter, len(p.deadLetters))
	copy(out, p.deadLetters)
	return out
}

func (p *Pool) loop(ctx context.Context) {
	for {
		raw, ok := p.queue.Dequeue(ctx)
		if !ok {
			return
		}
		p.process(ctx, raw)
	}
}

func (p *Pool) process(ctx context.Context, raw string) {
	env, err := decodeEnvelope([]byte(raw))
	if err != nil {
		p.log.WithError(err).Warn("dropping malformed envelope")
		return
	}
	address, err := env.address()
	if err != nil {
		p.log.WithError(err).WithField("job", env.JobID).Warn("dropping envelope with invalid address")
		return
	}

	if exists, err := p.marks.Exists(ctx, address); err == nil && exists {
		p.mu.Lock()
		p.stats.SuppressedTotal++
		p.mu.Unlock()
		return
	}

	if p.isDuplicate(address, cell.Value(env.Value)) {
		p.mu.Lock()
		p.stats.DedupedTotal++
		p.mu.Unlock()
		return
	}

	var lastErr error
	for attempt := 0; attempt < len(retryDelays); attempt++ {
		if wait := p.waitForQuota(ctx); wait {
			return
		}
		if lastErr = p.apply(ctx, env, address); lastErr == nil {
			p.mu.Lock()
			p.stats.ProcessedTotal++
			p.mu.Unlock()
			if p.sync != nil {
				p.sync(ctx)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelays[attempt]):
		}
	}

	p.deadLetter(env, address, lastErr, len(retryDelays))
}

// waitForQuota blocks until the rate limiter admits the next attempt,
// returning true only if ctx was cancelled while waiting.
func (p *Pool) waitForQuota(ctx context.Context) bool {
	for {
		ok, wait := p.limiter.Allow()
		if ok {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(wait):
		}
	}
}

// apply acquires the cell lease with owner worker:<jobId>, performs the
// idempotent upsert with origin worker, and releases the lease (spec §4.8
// steps ii-iv).
func (p *Pool) apply(ctx context.Context, env Envelope, address cell.Address) error {
	owner := "worker:" + env.JobID
	ok, err := p.locks.Acquire(ctx, address, owner)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.New(errkind.Contention, nil)
	}
	defer func() {
		if releaseErr := p.locks.Release(ctx, address, owner); releaseErr != nil {
			p.log.WithError(releaseErr).Warn("failed to release worker lease")
		}
	}()
	return p.store.Upsert(ctx, address, cell.Value(env.Value), cell.NewTag(cell.OriginWorker))
}

func (p *Pool) isDuplicate(address cell.Address, value cell.Value) bool {
	key := address.String()
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.seen[key]
	p.seen[key] = seenEntry{value: value, at: now}
	return ok && prev.value == value && now.Sub(prev.at) < dedupeWindow
}

func (p *Pool) deadLetter(env Envelope, address cell.Address, cause error, attempts int) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	entry := EnvelopeDeadLetter{
		JobID:        env.JobID,
		Address:      address.String(),
		FailedAt:     time.Now(),
		AttemptCount: attempts,
		LastError:    msg,
	}
	p.mu.Lock()
	p.deadLetters = append(p.deadLetters, entry)
	p.stats.DeadLetterTotal++
	p.mu.Unlock()
	p.log.WithField("job", env.JobID).WithField("address", address.String()).WithError(cause).Warn("job dead-lettered after exhausting retry budget")
}
