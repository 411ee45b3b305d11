package pipeline

import (
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Session owns the prediction history of one client. Each client gets its
// own Session; histories are never shared.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	history History
}

// NewSession starts a session with an empty history.
func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now().UTC()}
}

func (s *Session) record(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Append(entry)
}

// History returns a snapshot of the session's entries, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries()
}

// Summary renders the history for display in the language of tag.
func (s *Session) Summary(tag language.Tag) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Summary(tag)
}

// Len is the number of entries in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}
