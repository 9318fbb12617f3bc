package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default dedup windows.
const (
	DefaultBurstWindow = 100 * time.Millisecond
	DefaultQuietWindow = 5 * time.Second
	DefaultCacheTTL    = 10 * time.Second
)

// Result is the outcome of one ingestion attempt.
type Result int

const (
	Committed Result = iota
	DroppedRecent
	DroppedInFlight
	DroppedSuperseded
	DroppedAtCommit
	Rejected
	Failed
)

func (r Result) String() string {
	switch r {
	case Committed:
		return "committed"
	case DroppedRecent:
		return "dropped_recent"
	case DroppedInFlight:
		return "dropped_in_flight"
	case DroppedSuperseded:
		return "dropped_superseded"
	case DroppedAtCommit:
		return "dropped_at_commit"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Dropped reports whether the attempt was recognized as a duplicate.
func (r Result) Dropped() bool {
	return r >= DroppedRecent && r <= DroppedAtCommit
}

// PanicError wraps a value recovered from a presenter panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("presenter panicked: %v", e.Value)
}

// claim is the per-key compare-and-set cell: the last claimant's sequence and
// whether an attempt is between claim and commit.
type claim struct {
	last     uint64
	inFlight bool
}

// Pipeline dedups inbound messages and commits survivors into a Center.
// All bookkeeping happens under mu; presentation runs unlocked.
type Pipeline struct {
	center    *Center
	presenter Presenter
	listener  func(Notification)
	now       func() time.Time

	burst time.Duration
	quiet time.Duration

	mu      sync.Mutex
	seq     uint64
	claims  map[string]*claim
	recency *recency
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithPresenter replaces DefaultPresenter.
func WithPresenter(fn Presenter) Option {
	return func(p *Pipeline) { p.presenter = fn }
}

// WithListener is called with every committed notification, outside the lock.
func WithListener(fn func(Notification)) Option {
	return func(p *Pipeline) { p.listener = fn }
}

// WithWindows overrides the burst window, the quiet window and the recency TTL.
func WithWindows(burst, quiet, ttl time.Duration) Option {
	return func(p *Pipeline) {
		if burst > 0 {
			p.burst = burst
		}
		if quiet > 0 {
			p.quiet = quiet
		}
		if ttl > 0 {
			p.recency = newRecency(ttl)
		}
	}
}

// NewPipeline creates a pipeline committing into center.
func NewPipeline(center *Center, opts ...Option) *Pipeline {
	p := &Pipeline{
		center:    center,
		presenter: DefaultPresenter,
		now:       time.Now,
		burst:     DefaultBurstWindow,
		quiet:     DefaultQuietWindow,
		claims:    make(map[string]*claim),
		recency:   newRecency(DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Center returns the notification state the pipeline commits into.
func (p *Pipeline) Center() *Center {
	return p.center
}

// Ingest runs one message through the dedup protocol. Duplicates are reported
// through the result with a nil error; only malformed input and presenter
// failures return an error. The claim is released on every path.
func (p *Pipeline) Ingest(m Message) (res Result, err error) {
	m, err = m.normalize()
	if err != nil {
		return Rejected, err
	}
	key := KeyOf(m)

	seq, res := p.claim(key)
	if res != Committed {
		slog.Debug("duplicate dropped", "key", key, "result", res)
		return res, nil
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = Failed, fmt.Errorf("ingesting %s: %w", key, &PanicError{Value: r})
		}
		p.release(key, seq)
		if err != nil {
			slog.Warn("ingestion failed", "key", key, "error", err)
		}
	}()

	pres, err := p.presenter(m)
	if err != nil {
		return Failed, fmt.Errorf("presenting %s: %w", key, err)
	}

	n, res := p.commit(key, seq, m, pres)
	if res != Committed {
		slog.Debug("duplicate dropped at commit", "key", key, "result", res)
		return res, nil
	}

	p.notify(n)
	return Committed, nil
}

// notify hands n to the listener. A listener panic is logged and does not undo the commit.
func (p *Pipeline) notify(n Notification) {
	if p.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification listener panicked", "key", n.Key, "panic", r)
		}
	}()
	p.listener(n)
}

// window is the adaptive recency window for a key committed elapsed ago.
func (p *Pipeline) window(elapsed time.Duration) time.Duration {
	if elapsed < p.burst {
		return p.burst
	}
	return p.quiet
}

// recent reports whether key was committed inside its window. Callers hold mu.
func (p *Pipeline) recent(key string, now time.Time) bool {
	last, ok := p.recency.get(key, now)
	if !ok {
		return false
	}
	elapsed := now.Sub(last)
	return elapsed < p.window(elapsed)
}

// claim runs the recency check, the in-flight check and the sequence
// compare-and-set as one critical section.
func (p *Pipeline) claim(key string) (uint64, Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.recency.purge(now)

	if p.recent(key, now) {
		return 0, DroppedRecent
	}

	c, ok := p.claims[key]
	if ok && c.inFlight {
		return 0, DroppedInFlight
	}

	p.seq++
	seq := p.seq
	if !ok {
		c = &claim{}
		p.claims[key] = c
	}
	if c.last >= seq {
		return 0, DroppedSuperseded
	}
	c.last = seq
	c.inFlight = true
	return seq, Committed
}

// commit re-checks recency and claim authority, then appends the record.
func (p *Pipeline) commit(key string, seq uint64, m Message, pres Presentation) (Notification, Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.recent(key, now) {
		return Notification{}, DroppedAtCommit
	}
	if c, ok := p.claims[key]; !ok || c.last != seq {
		return Notification{}, DroppedAtCommit
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = now
	}
	n := Notification{
		ID:        uuid.NewString(),
		Type:      m.Type,
		Title:     pres.Title,
		Message:   pres.Message,
		Timestamp: ts,
		Category:  m.Category,
		Priority:  pres.Priority,
		Source:    m.Data,
		Key:       key,
	}
	p.center.add(n)
	p.recency.put(key, now)
	p.releaseLocked(key, seq)
	return n, Committed
}

func (p *Pipeline) release(key string, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(key, seq)
}

// releaseLocked drops the claim if seq still owns it. Releasing twice is a no-op.
func (p *Pipeline) releaseLocked(key string, seq uint64) {
	if c, ok := p.claims[key]; ok && c.last == seq {
		delete(p.claims, key)
	}
}

// InFlight returns the number of keys currently claimed.
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.claims {
		if c.inFlight {
			n++
		}
	}
	return n
}

// IsPanic reports whether err came from a recovered presenter panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
