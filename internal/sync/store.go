package sync

import (
	gosync "sync"

	"focuschat/internal/models"
)

// LogCapacity bounds the in-memory message log. It is a display bound only,
// not a retention policy on the backing store.
const LogCapacity = 50

// Store is the bounded, ordered message log for one channel. Messages are
// kept sorted by creation time ascending; insertion is idempotent by id, so
// any interleaving of the optimistic and the server-confirmed copy of a
// message leaves exactly one entry.
type Store struct {
	mu   gosync.RWMutex
	msgs []models.ChatMessage
}

// NewStore builds an empty log.
func NewStore() *Store {
	return &Store{}
}

// Upsert merges a message into the log. An existing entry with the same id is
// replaced in place (a deleted entry never becomes undeleted); a new entry is
// inserted in creation order, evicting the oldest once the log is full.
func (s *Store) Upsert(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(msg.ID); i >= 0 {
		msg.Deleted = msg.Deleted || s.msgs[i].Deleted
		if s.msgs[i].CreatedAtMs == msg.CreatedAtMs {
			s.msgs[i] = msg
			return
		}
		s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	}

	at := s.insertionPoint(msg.CreatedAtMs)
	s.msgs = append(s.msgs, models.ChatMessage{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = msg

	if len(s.msgs) > LogCapacity {
		s.msgs = append(s.msgs[:0], s.msgs[len(s.msgs)-LogCapacity:]...)
	}
}

// Remove drops the entry with the given id. Used to roll back exactly the
// optimistic copy of a failed send.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	return true
}

// MarkDeleted flips the soft-delete flag of the given entry. The flag never
// flips back.
func (s *Store) MarkDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs[i].Deleted = true
	return true
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (models.ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.ChatMessage{}, false
	}
	return s.msgs[i], true
}

// ReplaceAll swaps in a freshly fetched history, used on first load and for
// the catch-up after a reconnection gap.
func (s *Store) ReplaceAll(msgs []models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = s.msgs[:0]
	for _, msg := range msgs {
		at := s.insertionPoint(msg.CreatedAtMs)
		s.msgs = append(s.msgs, models.ChatMessage{})
		copy(s.msgs[at+1:], s.msgs[at:])
		s.msgs[at] = msg
	}
	if len(s.msgs) > LogCapacity {
		s.msgs = append(s.msgs[:0], s.msgs[len(s.msgs)-LogCapacity:]...)
	}
}

// Snapshot returns a copy of the log in creation order.
func (s *Store) Snapshot() []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ChatMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

func (s *Store) indexOf(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// insertionPoint returns the index after all entries with a creation stamp at
// or before the given one, keeping equal stamps in arrival order.
func (s *Store) insertionPoint(createdAtMs int64) int {
	lo, hi := 0, len(s.msgs)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.msgs[mid].CreatedAtMs <= createdAtMs {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
