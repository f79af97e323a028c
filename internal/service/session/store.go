// Package session keeps analysed transcripts in memory for a bounded time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/anonymize"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrTranscriptTooLarge = errors.New("transcript exceeds the size limit")
)

// Eviction reasons reported to metrics.
const (
	reasonTTL      = "ttl"
	reasonCapacity = "capacity"
	reasonDeleted  = "deleted"
)

const (
	defaultTTL      = 30 * time.Minute
	defaultCapacity = 100
)

// Parser turns raw transcript text into messages.
type Parser interface {
	Parse(raw string) (*transcript.Result, error)
}

// Normalizer pseudonymizes and redacts messages.
type Normalizer interface {
	Normalize(msgs []chat.Message) ([]chat.Message, *anonymize.Mapping)
}

// Engine computes a report from normalized messages.
type Engine interface {
	Compute(ctx context.Context, msgs []chat.Message) (*metrics.Report, error)
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long a session survives without being accessed.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of live sessions; zero disables the bound.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.capacity = n
		}
	}
}

// WithMaxTranscriptBytes rejects larger transcripts; zero disables the bound.
func WithMaxTranscriptBytes(n int64) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxBytes = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

type entry struct {
	info       chat.Session
	messages   []chat.Message
	mapping    *anonymize.Mapping
	lastAccess time.Time // guarded by Store.mu
	report     atomic.Pointer[metrics.Report]
}

// Store owns every live session. The map lock is only held for map
// operations; report computation is serialized per session.
type Store struct {
	parser     Parser
	normalizer Normalizer
	engine     Engine

	ttl      time.Duration
	capacity int
	maxBytes int64
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	compute  singleflight.Group

	metrics *observe.Metrics
	log     *logrus.Entry
}

// NewStore builds a Store from its collaborators.
func NewStore(parser Parser, normalizer Normalizer, engine Engine, opts ...Option) *Store {
	s := &Store{
		parser:     parser,
		normalizer: normalizer,
		engine:     engine,
		ttl:        defaultTTL,
		capacity:   defaultCapacity,
		now:        time.Now,
		sessions:   make(map[string]*entry),
		log:        logging.NewLogger("session"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create parses raw, normalizes it and registers a new session. The report
// is computed on first access.
func (s *Store) Create(_ context.Context, raw string) (chat.Session, error) {
	if s.maxBytes > 0 && int64(len(raw)) > s.maxBytes {
		return chat.Session{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTranscriptTooLarge, len(raw), s.maxBytes)
	}

	res, err := s.parser.Parse(raw)
	if err != nil {
		s.metrics.ParseFailed()
		return chat.Session{}, err
	}
	msgs, mapping := s.normalizer.Normalize(res.Messages)

	now := s.now()
	e := &entry{
		info: chat.Session{
			ID:           uuid.NewString(),
			CreatedAt:    now.UTC(),
			Messages:     len(msgs),
			Participants: mapping.Len(),
			DroppedLines: res.DroppedLines,
			DateOrder:    string(res.DateOrder),
		},
		messages:   msgs,
		mapping:    mapping,
		lastAccess: now,
	}
	if len(msgs) > 0 {
		start, end := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
		e.info.Start, e.info.End = &start, &end
	}

	s.mu.Lock()
	s.sweepLocked(now)
	for s.capacity > 0 && len(s.sessions) >= s.capacity {
		s.evictOldestLocked()
	}
	s.sessions[e.info.ID] = e
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SessionCreated(active)
	s.log.WithFields(logrus.Fields{
		"session":  e.info.ID,
		"messages": e.info.Messages,
		"dropped":  e.info.DroppedLines,
		"order":    e.info.DateOrder,
	}).Info("session created")
	return e.info, nil
}

// Session returns the session's metadata.
func (s *Store) Session(_ context.Context, id string) (chat.Session, error) {
	e, err := s.touch(id)
	if err != nil {
		return chat.Session{}, err
	}
	return e.info, nil
}

// Report returns the session's report, computing it on first use. Callers
// that give up early get ctx.Err() while the computation carries on for the
// next caller.
func (s *Store) Report(ctx context.Context, id string) (*metrics.Report, error) {
	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	return s.reportFor(ctx, id, e)
}

func (s *Store) reportFor(ctx context.Context, id string, e *entry) (*metrics.Report, error) {
	if r := e.report.Load(); r != nil {
		return r, nil
	}

	ch := s.compute.DoChan(id, func() (any, error) {
		if r := e.report.Load(); r != nil {
			return r, nil
		}
		started := time.Now()
		r, err := s.engine.Compute(context.WithoutCancel(ctx), e.messages)
		if err != nil {
			return nil, err
		}
		e.report.Store(r)
		s.metrics.ReportComputed(time.Since(started))
		s.log.WithFields(logrus.Fields{
			"session":  id,
			"duration": time.Since(started).String(),
		}).Debug("report computed")
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*metrics.Report), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metric returns one report section.
func (s *Store) Metric(ctx context.Context, id, name string) (any, error) {
	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	if !metrics.Known(name) {
		return nil, fmt.Errorf("%w: %q", metrics.ErrUnknownMetric, name)
	}
	if name == metrics.NameComparison {
		return nil, metrics.ErrSelfRequired
	}
	report, err := s.reportFor(ctx, id, e)
	if err != nil {
		return nil, err
	}
	return report.Section(name)
}

// Compare compares self against the group. self may be the raw sender name
// from the export or the pseudonymous label.
func (s *Store) Compare(ctx context.Context, id, self string) (*metrics.Comparison, error) {
	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	report, err := s.reportFor(ctx, id, e)
	if err != nil {
		return nil, err
	}
	return metrics.Compare(report, resolveLabel(e.mapping, self))
}

// resolveLabel maps a raw sender name to its label, exactly or fuzzily.
// Anything else is returned unchanged for label matching.
func resolveLabel(m *anonymize.Mapping, self string) string {
	if label, ok := m.Label(self); ok {
		return label
	}
	if _, ok := m.Raw(self); ok {
		return self
	}
	if raw, ok := metrics.ResolveSender(m.Senders(), self); ok {
		label, _ := m.Label(raw)
		return label
	}
	return self
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.metrics.SessionEvicted(reasonDeleted, active)
	s.log.WithField("session", id).Info("session deleted")
	return nil
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.WithField("evicted", n).Info("expired sessions swept")
			}
		}
	}
}

// Len returns the number of sessions held, expired ones included until the
// next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) touch(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := s.now()
	if s.expired(e, now) {
		delete(s.sessions, id)
		s.metrics.SessionEvicted(reasonTTL, len(s.sessions))
		return nil, ErrSessionNotFound
	}
	e.lastAccess = now
	return e, nil
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.lastAccess) > s.ttl
}

func (s *Store) sweepLocked(now time.Time) int {
	n := 0
	for id, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, id)
			n++
			s.metrics.SessionEvicted(reasonTTL, len(s.sessions))
		}
	}
	return n
}

func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if oldestID == "" || e.lastAccess.Before(oldest) {
			oldestID, oldest = id, e.lastAccess
		}
	}
	if oldestID == "" {
		return
	}
	delete(s.sessions, oldestID)
	s.metrics.SessionEvicted(reasonCapacity, len(s.sessions))
	s.log.WithField("session", oldestID).Info("session evicted at capacity")
}
