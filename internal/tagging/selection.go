package tagging

import (
	"sync"

	"github.com/jason-riddle/vault-go"
)

// Selection is an ordered set of tags, unique by id. The zero value is empty
// and ready to use.
type Selection struct {
	mu   sync.Mutex
	tags []vault.Tag
}

// NewSelection returns a selection holding tags.
func NewSelection(tags ...vault.Tag) *Selection {
	s := &Selection{}
	s.Set(tags)
	return s
}

// Add appends tag unless a tag with the same id is already selected. It
// reports whether the selection changed.
func (s *Selection) Add(tag vault.Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.ID == tag.ID {
			return false
		}
	}
	s.tags = append(s.tags, tag)
	return true
}

// Remove drops the tag with id.
func (s *Selection) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tags {
		if t.ID == id {
			s.tags = append(s.tags[:i:i], s.tags[i+1:]...)
			return true
		}
	}
	return false
}

// Set replaces the selection, dropping duplicate ids.
func (s *Selection) Set(tags []vault.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = nil
	seen := make(map[int]bool, len(tags))
	for _, t := range tags {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		s.tags = append(s.tags, t)
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = nil
}

// Tags returns a copy of the selected tags in selection order.
func (s *Selection) Tags() []vault.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vault.Tag(nil), s.tags...)
}

// IDs returns the selected tag ids in selection order. It never returns nil,
// so an empty selection still encodes as an empty list.
func (s *Selection) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.tags))
	for _, t := range s.tags {
		ids = append(ids, t.ID)
	}
	return ids
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}
