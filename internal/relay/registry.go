package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"studybot/internal/storage"
)

// Persisted documents.
const (
	docRegisteredUsers = "registered_users"
	docMessageMap      = "message_map"
)

// Mapping links one moderator-channel message id to the user it belongs to.
type Mapping struct {
	ModeratorMessageID int
	UserID             int64
}

// Registry persists the registered-user set and the moderator-message map.
// All writes go through storage.Documents, which serializes concurrent
// load-mutate-save cycles per document.
type Registry struct {
	docs *storage.Documents
}

func NewRegistry(docs *storage.Documents) *Registry {
	return &Registry{docs: docs}
}

// Register adds the user to the registered set. Registering an existing
// user is a no-op and writes nothing.
func (r *Registry) Register(ctx context.Context, userID int64) error {
	return r.docs.Update(ctx, docRegisteredUsers, func(data []byte, ok bool) ([]byte, error) {
		set, err := decodeUserSet(data, ok)
		if err != nil {
			return nil, err
		}
		if set[userID] {
			return nil, storage.ErrNoChange
		}
		set[userID] = true
		return encodeUserSet(set)
	})
}

// Users returns a snapshot of the registered set.
func (r *Registry) Users(ctx context.Context) ([]int64, error) {
	data, ok, err := r.docs.Load(ctx, docRegisteredUsers)
	if err != nil {
		return nil, err
	}
	set, err := decodeUserSet(data, ok)
	if err != nil {
		return nil, err
	}
	users := make([]int64, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// Remove deletes the given users from the registered set. It operates on
// the current document, so users registered after the caller took its
// snapshot are preserved.
func (r *Registry) Remove(ctx context.Context, gone []int64) error {
	if len(gone) == 0 {
		return nil
	}
	return r.docs.Update(ctx, docRegisteredUsers, func(data []byte, ok bool) ([]byte, error) {
		set, err := decodeUserSet(data, ok)
		if err != nil {
			return nil, err
		}
		changed := false
		for _, id := range gone {
			if set[id] {
				delete(set, id)
				changed = true
			}
		}
		if !changed {
			return nil, storage.ErrNoChange
		}
		return encodeUserSet(set)
	})
}

// MapMessages records moderator-message → user mappings. The map is
// append-only: an already-mapped message id is never overwritten.
func (r *Registry) MapMessages(ctx context.Context, entries []Mapping) error {
	if len(entries) == 0 {
		return nil
	}
	return r.docs.Update(ctx, docMessageMap, func(data []byte, ok bool) ([]byte, error) {
		m, err := decodeMessageMap(data, ok)
		if err != nil {
			return nil, err
		}
		changed := false
		for _, e := range entries {
			key := strconv.Itoa(e.ModeratorMessageID)
			if _, exists := m[key]; exists {
				continue
			}
			m[key] = e.UserID
			changed = true
		}
		if !changed {
			return nil, storage.ErrNoChange
		}
		return json.Marshal(m)
	})
}

// LookupOrigin resolves a moderator-channel message id to the user who
// originated it. ok is false for unmapped ids.
func (r *Registry) LookupOrigin(ctx context.Context, moderatorMessageID int) (int64, bool, error) {
	data, present, err := r.docs.Load(ctx, docMessageMap)
	if err != nil {
		return 0, false, err
	}
	m, err := decodeMessageMap(data, present)
	if err != nil {
		return 0, false, err
	}
	userID, ok := m[strconv.Itoa(moderatorMessageID)]
	return userID, ok, nil
}

func decodeUserSet(data []byte, ok bool) (map[int64]bool, error) {
	if !ok || len(data) == 0 {
		return map[int64]bool{}, nil
	}
	var users []int64
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%s: %w", docRegisteredUsers, err)
	}
	set := make(map[int64]bool, len(users))
	for _, id := range users {
		set[id] = true
	}
	return set, nil
}

func encodeUserSet(set map[int64]bool) ([]byte, error) {
	users := make([]int64, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	// Stable order keeps the stored document diff-friendly.
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return json.Marshal(users)
}

func decodeMessageMap(data []byte, ok bool) (map[string]int64, error) {
	if !ok || len(data) == 0 {
		return map[string]int64{}, nil
	}
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", docMessageMap, err)
	}
	return m, nil
}
