// Package messages holds the ordered message collection shown in a
// conversation. It performs no I/O and no locking; the conversation
// controller serializes access.
package messages

import (
	"sort"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

// Store keeps messages unique by id and sorted ascending by timestamp.
// Equal timestamps keep their insertion order.
type Store struct {
	items []model.Message
}

func New() *Store {
	return &Store{}
}

// Upsert replaces the message with the same id in place, or appends it.
func (s *Store) Upsert(msg model.Message) {
	s.items = upsert(s.items, msg)
}

// ReplaceTemp drops tempID, if still present, and upserts confirmed.
func (s *Store) ReplaceTemp(tempID string, confirmed model.Message) {
	if tempID != confirmed.ID {
		s.items = remove(s.items, tempID)
	}
	s.items = upsert(s.items, confirmed)
}

// MergeHistory rebuilds the collection from server history. Welcome
// entries and unconfirmed optimistic entries are local-only and survive;
// everything else is superseded by the server's copy.
func (s *Store) MergeHistory(history []model.Message) {
	kept := make([]model.Message, 0, len(s.items)+len(history))
	for _, msg := range s.items {
		if msg.IsWelcome() || msg.IsPending() {
			kept = append(kept, msg)
		}
	}
	for _, msg := range history {
		kept = upsert(kept, msg)
	}
	sortMessages(kept)
	s.items = kept
}

func (s *Store) SetAll(msgs []model.Message) {
	items := make([]model.Message, 0, len(msgs))
	for _, msg := range msgs {
		items = upsert(items, msg)
	}
	sortMessages(items)
	s.items = items
}

func (s *Store) Clear() {
	s.items = nil
}

func (s *Store) Get(id string) (model.Message, bool) {
	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return model.Message{}, false
}

func (s *Store) Len() int {
	return len(s.items)
}

// All returns a copy of the messages in display order.
func (s *Store) All() []model.Message {
	out := make([]model.Message, len(s.items))
	copy(out, s.items)
	return out
}

func upsert(items []model.Message, msg model.Message) []model.Message {
	if i := indexOf(items, msg.ID); i >= 0 {
		items[i] = msg
	} else {
		items = append(items, msg)
	}
	sortMessages(items)
	return items
}

func remove(items []model.Message, id string) []model.Message {
	i := indexOf(items, id)
	if i < 0 {
		return items
	}
	return append(items[:i], items[i+1:]...)
}

func indexOf(items []model.Message, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func sortMessages(items []model.Message) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
}
