// Package targets holds the ordered set of object labels requested for detection.
package targets

import (
	"strings"
	"sync"

	"github.com/samber/lo"

	"video-detector/internal/domain"
)

// CommonTargets is the fixed quick-pick list offered next to free-text entry.
var CommonTargets = []string{
	"person", "car", "truck", "bus", "bicycle", "motorcycle",
	"dog", "cat", "bird", "horse", "sheep", "cow",
	"chair", "sofa", "table", "bed", "laptop", "phone",
	"bottle", "cup", "fork", "knife", "spoon", "bowl",
}

// Store is an insertion-ordered set of normalized, non-empty labels.
type Store struct {
	mu     sync.RWMutex
	labels []string
}

// NewStore creates an empty target set.
func NewStore() *Store {
	return &Store{}
}

// Normalize trims and lowercases a label.
func Normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Add appends the normalized label. Empty or duplicate labels are ignored.
// Reports whether the set changed.
func (s *Store) Add(label string) bool {
	normalized := Normalize(label)
	if normalized == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lo.Contains(s.labels, normalized) {
		return false
	}
	s.labels = append(s.labels, normalized)
	return true
}

// Remove deletes an exact match if present. Reports whether the set changed.
func (s *Store) Remove(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !lo.Contains(s.labels, label) {
		return false
	}
	s.labels = lo.Without(s.labels, label)
	return true
}

// Toggle removes the label if present, otherwise adds it.
// Returns whether the label is selected afterwards.
func (s *Store) Toggle(label string) bool {
	normalized := Normalize(label)
	if normalized == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lo.Contains(s.labels, normalized) {
		s.labels = lo.Without(s.labels, normalized)
		return false
	}
	s.labels = append(s.labels, normalized)
	return true
}

// Contains reports whether the normalized label is selected.
func (s *Store) Contains(label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Contains(s.labels, Normalize(label))
}

// List returns a copy of the labels in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.labels...)
}

// Len returns the number of selected labels.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

// Common returns the quick-pick list annotated with selection state.
func (s *Store) Common() []domain.TargetOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(CommonTargets, func(label string, _ int) domain.TargetOption {
		return domain.TargetOption{Label: label, Selected: lo.Contains(s.labels, label)}
	})
}
