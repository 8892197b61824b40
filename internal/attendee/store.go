package attendee

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/domain"
)

var ErrNotFound = errors.New("attendee not found")

// Store is the ordered in-memory attendee list for one session.
// Order is insertion order; only Remove and Clear take entries out.
type Store struct {
	mu        sync.Mutex
	attendees []domain.Attendee
	newID     func() string
}

func NewStore() *Store {
	return &Store{newID: uuid.NewString}
}

// Append records a finalized utterance. name and phone come from the
// normalized utterance; raw is kept as recognized. Blank utterances are
// ignored and reported with ok=false.
func (s *Store) Append(raw string, name string, phone string, at time.Time) (domain.Attendee, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Attendee{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = raw
	}

	entry := domain.Attendee{
		ID:             s.newID(),
		RawInput:       raw,
		FormattedName:  name,
		FormattedPhone: strings.TrimSpace(phone),
		Timestamp:      at,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendees = append(s.attendees, entry)
	return entry, true
}

// Edit replaces both the raw input and the display name so the edit
// survives a later correction pass.
func (s *Store) Edit(id string, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	return s.update(id, func(a *domain.Attendee) {
		a.RawInput = name
		a.FormattedName = name
	})
}

// EditPhone replaces the display phone. An empty phone clears it.
func (s *Store) EditPhone(id string, phone string) error {
	return s.update(id, func(a *domain.Attendee) {
		a.FormattedPhone = strings.TrimSpace(phone)
	})
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attendees {
		if s.attendees[i].ID == id {
			s.attendees = append(s.attendees[:i], s.attendees[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendees = nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendees)
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *Store) Snapshot() []domain.Attendee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Attendee, len(s.attendees))
	copy(out, s.attendees)
	return out
}

// Replace overwrites display fields from a corrected list. Entries are
// matched by id; ids missing from corrected keep their current values.
// Names that are blank after correction fall back to the raw input.
func (s *Store) Replace(corrected []domain.Attendee) {
	byID := make(map[string]domain.Attendee, len(corrected))
	for _, a := range corrected {
		byID[a.ID] = a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attendees {
		next, ok := byID[s.attendees[i].ID]
		if !ok {
			continue
		}
		name := strings.TrimSpace(next.FormattedName)
		if name == "" {
			name = s.attendees[i].RawInput
		}
		s.attendees[i].FormattedName = name
		s.attendees[i].FormattedPhone = strings.TrimSpace(next.FormattedPhone)
	}
}

func (s *Store) update(id string, fn func(*domain.Attendee)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attendees {
		if s.attendees[i].ID == id {
			fn(&s.attendees[i])
			return nil
		}
	}
	return ErrNotFound
}
