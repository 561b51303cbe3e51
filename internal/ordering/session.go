package ordering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/garnizeh/staffdir/internal/metrics"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/models"
	"github.com/garnizeh/staffdir/pkg/repository"
)

const (
	// DistanceOffset shifts every indicator down before comparing it with the
	// pointer, so an indicator wins while the pointer is above its midpoint.
	DistanceOffset = 50
	// EndOfList is the before id of the trailing indicator.
	EndOfList = "-1"
)

// State of a reorder session.
type State string

const (
	Idle     State = "idle"
	Dragging State = "dragging"
)

var (
	ErrUnknownRecord   = errors.New("unknown record")
	ErrNotDragging     = errors.New("no drag in progress")
	ErrDragInProgress  = errors.New("drag in progress")
	ErrNoIndicators    = errors.New("no drop indicators")
	ErrSessionNotFound = errors.New("reorder session not found")
)

// Indicator is a drop target rendered above the record BeforeID, or at the
// end of the list when BeforeID is EndOfList. Top is its vertical position
// in the same coordinate space as the pointer.
type Indicator struct {
	BeforeID string  `json:"beforeId"`
	Top      float64 `json:"top"`
}

// NearestIndicator picks the indicator with the largest negative offset
// pointerY - (Top + DistanceOffset). When none is negative the last
// indicator wins, which is the end-of-list one by convention.
func NearestIndicator(pointerY float64, indicators []Indicator) (Indicator, error) {
	if len(indicators) == 0 {
		return Indicator{}, ErrNoIndicators
	}
	closest := math.Inf(-1)
	pick := -1
	for i, ind := range indicators {
		offset := pointerY - (ind.Top + DistanceOffset)
		if offset < 0 && offset > closest {
			closest = offset
			pick = i
		}
	}
	if pick < 0 {
		pick = len(indicators) - 1
	}
	return indicators[pick], nil
}

// View is a point-in-time copy of a session.
type View struct {
	ID       string          `json:"sessionId"`
	State    State           `json:"state"`
	Dirty    bool            `json:"dirty"`
	Dragging string          `json:"dragging,omitempty"`
	People   []models.Person `json:"people"`
}

// Session holds the working order of one reorder interaction. It is safe for
// concurrent use; every method runs under the session lock.
type Session struct {
	mu       sync.Mutex
	id       string
	store    repository.RosterStore
	loaded   []models.Person
	working  []models.Person
	state    State
	dragging string
}

// Begin loads the full roster in natural id order as the working order.
func Begin(ctx context.Context, id string, store repository.RosterStore) (*Session, error) {
	all, err := store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	slices.SortStableFunc(all, func(a, b models.Person) int { return roster.CompareIDs(a.ID, b.ID) })
	return &Session{
		id:      id,
		store:   store,
		loaded:  all,
		working: slices.Clone(all),
		state:   Idle,
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		ID:       s.id,
		State:    s.state,
		Dirty:    !sameOrder(s.loaded, s.working),
		Dragging: s.dragging,
		People:   slices.Clone(s.working),
	}
}

// DragStart makes id the drag subject.
func (s *Session) DragStart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.working, id) < 0 {
		return fmt.Errorf("drag %s: %w", id, ErrUnknownRecord)
	}
	s.state = Dragging
	s.dragging = id
	return nil
}

// DragOver returns the indicator to highlight for the pointer position.
func (s *Session) DragOver(pointerY float64, indicators []Indicator) (Indicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return Indicator{}, ErrNotDragging
	}
	return NearestIndicator(pointerY, indicators)
}

// DragEnd abandons the drag without moving anything.
func (s *Session) DragEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.dragging = ""
}

// Drop moves the drag subject before beforeID, or to the end for EndOfList,
// and reports whether the order changed. Dropping a record before itself is
// a no-op. The session is idle afterwards either way.
func (s *Session) Drop(beforeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Dragging {
		return false, ErrNotDragging
	}
	subject := s.dragging
	s.state = Idle
	s.dragging = ""

	if beforeID == subject {
		return false, nil
	}
	if beforeID != EndOfList && indexOf(s.working, beforeID) < 0 {
		return false, fmt.Errorf("drop before %s: %w", beforeID, ErrUnknownRecord)
	}

	from := indexOf(s.working, subject)
	if from < 0 {
		return false, fmt.Errorf("drop %s: %w", subject, ErrUnknownRecord)
	}
	moved := s.working[from]
	next := slices.Delete(slices.Clone(s.working), from, from+1)
	if beforeID == EndOfList {
		next = append(next, moved)
	} else {
		next = slices.Insert(next, indexOf(next, beforeID), moved)
	}

	changed := !sameOrder(s.working, next)
	s.working = next
	return changed, nil
}

// MoveTo moves id to the 1-based position given as text. Anything other than
// digits in 1..N is a *roster.ValidationError and leaves the order alone.
func (s *Session) MoveTo(id, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Dragging {
		return ErrDragInProgress
	}
	from := indexOf(s.working, id)
	if from < 0 {
		return fmt.Errorf("move %s: %w", id, ErrUnknownRecord)
	}
	n, err := parseTarget(target, len(s.working))
	if err != nil {
		return err
	}
	moved := s.working[from]
	next := slices.Delete(slices.Clone(s.working), from, from+1)
	s.working = slices.Insert(next, n-1, moved)
	return nil
}

func parseTarget(target string, total int) (int, error) {
	if target == "" {
		return 0, roster.NewValidationError("target", "Enter a position")
	}
	for _, r := range target {
		if r < '0' || r > '9' {
			return 0, roster.NewValidationError("target", "Position must contain digits only")
		}
	}
	n, err := strconv.Atoi(target)
	if err != nil || n < 1 || n > total {
		return 0, roster.NewValidationError("target", fmt.Sprintf("Position must be between 1 and %d", total))
	}
	return n, nil
}

// Commit renumbers the working order to ids "1".."N" and overwrites the
// whole roster range with it, then reads the rows back for their metadata.
// On failure the working order is kept so the commit can be retried.
func (s *Session) Commit(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Dragging {
		return View{}, ErrDragInProgress
	}

	out := make([]models.Person, len(s.working))
	for i, p := range s.working {
		p.ID = strconv.Itoa(i + 1)
		p.Profile = nil
		p.Metadata = nil
		out[i] = p
	}
	if err := s.store.ReplaceRange(ctx, out); err != nil {
		metrics.ReorderCommits.WithLabelValues("error").Inc()
		return View{}, fmt.Errorf("commit order: %w", err)
	}
	metrics.ReorderCommits.WithLabelValues("ok").Inc()

	// metadata comes from reading the rows back; if that fails they carry none
	s.loaded = out
	if stored, err := s.store.ListAll(ctx); err == nil && len(stored) == len(out) {
		slices.SortStableFunc(stored, func(a, b models.Person) int { return roster.CompareIDs(a.ID, b.ID) })
		s.loaded = stored
	}
	s.working = slices.Clone(s.loaded)
	return s.viewLocked(), nil
}

// Cancel discards the working order.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = slices.Clone(s.loaded)
	s.state = Idle
	s.dragging = ""
}

func indexOf(people []models.Person, id string) int {
	return slices.IndexFunc(people, func(p models.Person) bool { return p.ID == id })
}

func sameOrder(a, b []models.Person) bool {
	return slices.EqualFunc(a, b, func(x, y models.Person) bool { return x.ID == y.ID })
}
