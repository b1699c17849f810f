// Package session keeps per-visitor dashboard state in memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
)

// Entry is one rendered interaction in the log.
type Entry struct {
	Interaction *pipeline.Interaction
	// ChartPNG caches the rendered chart so the page does not re-render it.
	ChartPNG []byte
	// Message is the inline error text, empty on success.
	Message string
}

// Session is the state of one browser session. At most one dataset is
// active; the log is kept in display order.
type Session struct {
	ID string

	mu      sync.Mutex
	apiKey  string
	ds      *dataset.Dataset
	log     []Entry
	max     int
	touched time.Time

	// run serializes queries within the session.
	run sync.Mutex
}

// APIKey returns the key entered for this session.
func (s *Session) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// SetAPIKey stores the key for later queries.
func (s *Session) SetAPIKey(k string) {
	s.mu.Lock()
	s.apiKey = k
	s.mu.Unlock()
}

// Dataset returns the active dataset, or nil.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// ReplaceDataset swaps in ds; the previous dataset is dropped. The log is kept.
func (s *Session) ReplaceDataset(ds *dataset.Dataset) {
	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()
}

// Append adds an entry at the end of the log, dropping the oldest entries
// beyond the history limit.
func (s *Session) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	if s.max > 0 && len(s.log) > s.max {
		s.log = append([]Entry(nil), s.log[len(s.log)-s.max:]...)
	}
}

// History returns a copy of the log, oldest first.
func (s *Session) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.log...)
}

// ClearHistory empties the log.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}

// Serialize runs fn while holding the session's query lock, so one session
// handles one query at a time.
func (s *Session) Serialize(fn func()) {
	s.run.Lock()
	defer s.run.Unlock()
	fn()
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.touched = t
	s.mu.Unlock()
}

func (s *Session) idleSince(t time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.Sub(s.touched)
}

// Options configures a Store.
type Options struct {
	TTL        time.Duration
	MaxHistory int
	Logger     *zap.Logger
	// OnChange is called with the live session count after it changes.
	OnChange func(n int)
}

// Store holds sessions by id.
type Store struct {
	opt Options
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore(opt Options) *Store {
	l := opt.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Store{opt: opt, log: l, now: time.Now, sessions: map[string]*Session{}}
}

// Get returns the session for id and refreshes its idle timer.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		s.touch(st.now())
	}
	return s, ok
}

// Create starts a new session with a random id.
func (st *Store) Create() *Session {
	s := &Session{ID: uuid.New().String(), max: st.opt.MaxHistory, touched: st.now()}
	st.mu.Lock()
	st.sessions[s.ID] = s
	n := len(st.sessions)
	st.mu.Unlock()
	st.log.Debug("session created", zap.String("session", s.ID))
	st.changed(n)
	return s
}

// GetOrCreate returns the session for id, creating one when id is unknown.
func (st *Store) GetOrCreate(id string) *Session {
	if s, ok := st.Get(id); ok {
		return s
	}
	return st.Create()
}

// Delete drops a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()
	st.changed(n)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep removes sessions idle longer than the TTL and returns how many went.
func (st *Store) Sweep() int {
	if st.opt.TTL <= 0 {
		return 0
	}
	now := st.now()
	st.mu.Lock()
	removed := 0
	for id, s := range st.sessions {
		if s.idleSince(now) > st.opt.TTL {
			delete(st.sessions, id)
			removed++
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()
	if removed > 0 {
		st.log.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("live", n))
		st.changed(n)
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (st *Store) Run(ctx context.Context) {
	if st.opt.TTL <= 0 {
		return
	}
	every := st.opt.TTL / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st.Sweep()
		}
	}
}

func (st *Store) changed(n int) {
	if st.opt.OnChange != nil {
		st.opt.OnChange(n)
	}
}
