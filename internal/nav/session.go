package nav

import (
	"sync"

	"studybot/internal/catalog"
)

// Level indexes the four selectable depths of the catalog tree.
type Level int

const (
	LevelYear Level = iota
	LevelSpecialization
	LevelSemester
	LevelSubject

	levelCount
)

func (l Level) valid() bool { return l >= LevelYear && l < levelCount }

// Session is one user's ephemeral navigation state. Selections are stored
// by name, never by index: indices only address buttons on the screen that
// rendered them.
type Session struct {
	path [levelCount]string
	// items caches the leaf list of the selected subject so SelectLeaf can
	// resolve by index without re-walking the tree.
	items    []catalog.Item
	hasItems bool
}

// set records a selection at the given level and drops everything deeper.
func (s *Session) set(level Level, name string) {
	s.path[level] = name
	for l := level + 1; l < levelCount; l++ {
		s.path[l] = ""
	}
	s.items = nil
	s.hasItems = false
}

// clear resets the whole session (home).
func (s *Session) clear() {
	*s = Session{}
}

// depth returns the number of contiguous selected levels from the top.
func (s *Session) depth() Level {
	for l := LevelYear; l < levelCount; l++ {
		if s.path[l] == "" {
			return l
		}
	}
	return levelCount
}

// Store keeps per-user sessions. It is owned by the engine, not process
// globals, and holds nothing across restarts.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: map[int64]*Session{}}
}

func (st *Store) get(userID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.sessions[userID]
	if s == nil {
		s = &Session{}
		st.sessions[userID] = s
	}
	return s
}

// Len reports the number of live sessions (observability only).
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
