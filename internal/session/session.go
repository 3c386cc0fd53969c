// Package session owns one patient model and the treatment catalog it draws
// from, and serializes every state change against concurrent callers.
package session

import (
	"sync"
	"time"

	"github.com/gmsas95/medtwin/internal/catalog"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/metrics"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is a catalog treatment annotated with its applied state
type Entry struct {
	model.Treatment
	Applied      bool `json:"applied"`
	AppliedCount int  `json:"applied_count"`
}

// Session is a single-actor health model session
type Session struct {
	id        string
	createdAt time.Time

	mu        sync.Mutex
	model     *model.Model
	catalog   *catalog.Catalog
	modelOpts []model.Option

	subMu   sync.Mutex
	subs    map[int]chan model.Snapshot
	nextSub int

	recorder metrics.Recorder
	logger   *zap.Logger
}

// Option configures a Session
type Option func(*Session)

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithModelOptions passes options to every model the session creates
func WithModelOptions(opts ...model.Option) Option {
	return func(s *Session) {
		s.modelOpts = append(s.modelOpts, opts...)
	}
}

// New starts a session over cat. A nil catalog means the built-in one.
func New(cat *catalog.Catalog, opts ...Option) *Session {
	if cat == nil {
		cat = catalog.Default()
	}

	s := &Session{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		catalog:   cat,
		subs:      make(map[int]chan model.Snapshot),
		recorder:  metrics.Nop{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.model = s.newModel()
	s.recorder.StateChanged(s.model.Snapshot())

	s.logger.Info("Session started",
		zap.Int("metrics", len(cat.Metrics)),
		zap.Int("treatments", len(cat.Treatments)),
		zap.String("duplicate_policy", s.model.Policy().String()),
	)

	return s
}

func (s *Session) newModel() *model.Model {
	opts := append([]model.Option{model.WithLogger(s.logger)}, s.modelOpts...)
	return s.catalog.NewModel(opts...)
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns the session start time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// ApplyByID applies the catalog treatment with the given id
func (s *Session) ApplyByID(id int) (model.Treatment, error) {
	t, _, err := s.ApplyByIDWithSnapshot(id)
	return t, err
}

// ApplyByIDWithSnapshot is ApplyByID that also returns the state the change
// produced, taken before any later change can land.
func (s *Session) ApplyByIDWithSnapshot(id int) (model.Treatment, model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.catalog.Treatment(id)
	if !ok {
		return model.Treatment{}, model.Snapshot{}, apperrors.ErrTreatmentNotFound
	}
	return s.apply(t)
}

// Apply applies t, which need not be in the catalog
func (s *Session) Apply(t model.Treatment) (model.Treatment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, _, err := s.apply(t)
	return applied, err
}

func (s *Session) apply(t model.Treatment) (model.Treatment, model.Snapshot, error) {
	applied, ok := s.model.ApplyTreatment(t)
	if !ok {
		s.recorder.TreatmentRejected(t.ID)
		s.logger.Info("Treatment rejected as duplicate", zap.Int("treatment_id", t.ID))
		return applied, s.model.Snapshot(), apperrors.ErrAlreadyApplied
	}

	s.recorder.TreatmentApplied(t.ID)
	s.logger.Info("Treatment applied",
		zap.Int("treatment_id", applied.ID),
		zap.String("name", applied.Name),
		zap.Int("overall_health", s.model.OverallHealth()),
	)

	return applied, s.changed(), nil
}

// Revert removes the most recent instance of id. It reports false and changes
// nothing when id is not applied.
func (s *Session) Revert(id int) (model.Treatment, bool) {
	t, _, ok := s.RevertWithSnapshot(id)
	return t, ok
}

// RevertWithSnapshot is Revert that also returns the state the change produced
func (s *Session) RevertWithSnapshot(id int) (model.Treatment, model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reverted, ok := s.model.RevertTreatment(id)
	if !ok {
		return model.Treatment{}, model.Snapshot{}, false
	}

	s.recorder.TreatmentReverted(id)
	s.logger.Info("Treatment reverted",
		zap.Int("treatment_id", id),
		zap.Int("overall_health", s.model.OverallHealth()),
	)

	return reverted, s.changed(), true
}

// Reset discards all applied treatments and rebuilds the model from the
// current catalog's metric definitions
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.model = s.newModel()
	s.logger.Info("Session reset")
	s.changed()
}

// Snapshot returns a copy of the current model state
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.model.Snapshot()
}

// Catalog returns the catalog in use
func (s *Session) Catalog() *catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog
}

// SetCatalog swaps the catalog used for lookups. Applied treatments keep the
// impacts they were applied with; new metric definitions take effect on Reset.
func (s *Session) SetCatalog(c *catalog.Catalog) {
	if c == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = c
	s.logger.Info("Catalog replaced",
		zap.Int("metrics", len(c.Metrics)),
		zap.Int("treatments", len(c.Treatments)),
	)
}

// Entries returns the catalog treatments in priority order with applied flags
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[int]int)
	for _, t := range s.model.AppliedTreatments() {
		counts[t.ID]++
	}

	sorted := s.catalog.Sorted()
	out := make([]Entry, len(sorted))
	for i, t := range sorted {
		out[i] = Entry{
			Treatment:    t,
			Applied:      counts[t.ID] > 0,
			AppliedCount: counts[t.ID],
		}
	}
	return out
}

// Report renders the plain-text trajectory export
func (s *Session) Report() string {
	return report.Text(s.Snapshot())
}

// Prompt renders the advisory request for the current state
func (s *Session) Prompt() string {
	return report.Prompt(s.Snapshot())
}

// Subscribe returns a channel receiving a snapshot after every state change,
// and a func that ends the subscription. Slow readers only see the latest
// snapshot.
func (s *Session) Subscribe() (<-chan model.Snapshot, func()) {
	ch := make(chan model.Snapshot, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// changed publishes and returns the new state. Callers hold s.mu so
// subscribers observe changes in commit order.
func (s *Session) changed() model.Snapshot {
	snap := s.model.Snapshot()
	s.recorder.StateChanged(snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot and offer the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}
