// Package store owns the persisted event list: creation with defaults,
// validated updates and deletes, and date-range queries.
package store

import (
	"context"
	"crypto/rand"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"daycal/internal/errors"
	"daycal/internal/kv"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/timemath"
)

// DefaultKey is the key the event list is stored under.
const DefaultKey = "calendarEvents"

// Options configures a Store.
type Options struct {
	// Key overrides DefaultKey.
	Key string
	// Quantum is the minimum event duration in minutes. Zero means 15.
	Quantum int
	// Now stamps new ids. Defaults to time.Now.
	Now func() time.Time
	// Entropy feeds id generation. Defaults to crypto/rand.
	Entropy io.Reader
}

// Patch lists the fields an Update changes; nil means unchanged.
type Patch struct {
	Date        *string
	StartMinute *int
	EndMinute   *int
	Title       *string
	ColorID     *int
	Repeat      *model.RepeatRule
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Date == nil && p.StartMinute == nil && p.EndMinute == nil && p.Title == nil &&
		p.ColorID == nil && p.Repeat == nil && p.Description == nil
}

// Store is the in-memory authoritative event list backed by one KV key.
// Every mutation writes the whole list once.
type Store struct {
	mu      sync.Mutex
	kv      kv.KV
	key     string
	quantum int
	now     func() time.Time
	entropy io.Reader
	events  []model.Event
}

// Open loads the list stored under opts.Key. A missing or malformed value
// starts an empty list. A failing read also starts empty; the store is
// returned together with a PersistenceError so the caller can warn.
func Open(ctx context.Context, backend kv.KV, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.NewInvalidRequest("store needs a key-value backend")
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Quantum <= 0 {
		opts.Quantum = timemath.DefaultQuantum
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Entropy == nil {
		opts.Entropy = rand.Reader
	}

	s := &Store{
		kv:      backend,
		key:     opts.Key,
		quantum: opts.Quantum,
		now:     opts.Now,
		entropy: ulid.Monotonic(opts.Entropy, 0),
		events:  []model.Event{},
	}

	raw, ok, err := backend.Get(ctx, s.key)
	if err != nil {
		appLog.Warn("store: could not read events, starting empty", "key", s.key, "err", err)
		return s, errors.NewPersistence(err)
	}
	if ok {
		s.events = decode(raw)
	}
	appLog.Info("store: loaded events", "key", s.key, "count", len(s.events))
	return s, nil
}

// Quantum is the minimum event duration the store enforces.
func (s *Store) Quantum() int {
	return s.quantum
}

// Create validates a draft, applies defaults, assigns an id and persists.
// On a PersistenceError the event is kept in memory and returned.
func (s *Store) Create(ctx context.Context, d model.Draft) (model.Event, error) {
	ev := model.Event{
		Date:        strings.TrimSpace(d.Date),
		StartMinute: d.StartMinute,
		EndMinute:   d.EndMinute,
		Title:       d.Title,
		ColorID:     d.ColorID,
		Repeat:      d.Repeat,
		Description: d.Description,
	}
	if err := s.validate(&ev); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newID()
	if err != nil {
		return model.Event{}, errors.NewPersistence(err)
	}
	ev.ID = id
	s.events = append(s.events, ev)

	return ev, s.persistLocked(ctx)
}

// Update applies p to the event with the given id. Invalid spans are
// rejected, never corrected.
func (s *Store) Update(ctx context.Context, id string, p Patch) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Event{}, errors.NewNotFound(id)
	}
	if p.Empty() {
		return s.events[idx], nil
	}

	ev := s.events[idx]
	if p.Date != nil {
		ev.Date = strings.TrimSpace(*p.Date)
	}
	if p.StartMinute != nil {
		ev.StartMinute = *p.StartMinute
	}
	if p.EndMinute != nil {
		ev.EndMinute = *p.EndMinute
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.ColorID != nil {
		ev.ColorID = *p.ColorID
	}
	if p.Repeat != nil {
		ev.Repeat = *p.Repeat
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if err := s.validate(&ev); err != nil {
		return model.Event{}, err
	}

	if ev == s.events[idx] {
		return ev, nil
	}
	s.events[idx] = ev
	return ev, s.persistLocked(ctx)
}

// Delete removes the event. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil
	}
	s.events = append(s.events[:idx], s.events[idx+1:]...)
	return s.persistLocked(ctx)
}

// Get returns a copy of the event with the given id.
func (s *Store) Get(id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Event{}, errors.NewNotFound(id)
	}
	return s.events[idx], nil
}

// All returns every stored event in chronological order.
func (s *Store) All() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCopy(s.events)
}

// Query returns the raw events whose date lies in r, in chronological order.
// Recurrence is not applied here.
func (s *Store) Query(r model.DateRange) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if r.Contains(ev.Date) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out
}

// validate applies defaults and checks everything a stored event must satisfy.
func (s *Store) validate(ev *model.Event) error {
	if _, err := timemath.ParseDate(ev.Date); err != nil {
		return err
	}
	rule, err := model.ParseRepeatRule(string(ev.Repeat))
	if err != nil {
		return err
	}
	ev.Repeat = rule
	if !model.ValidSpan(ev.StartMinute, ev.EndMinute, s.quantum) {
		return errors.NewInvalidRange(ev.StartMinute, ev.EndMinute, s.quantum)
	}
	normalizeDefaults(ev)
	return nil
}

func normalizeDefaults(ev *model.Event) {
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		ev.Title = model.DefaultTitle
	}
	if _, ok := model.ColorByID(ev.ColorID); !ok {
		ev.ColorID = model.DefaultColorID()
	}
	if rule, err := model.ParseRepeatRule(string(ev.Repeat)); err == nil {
		ev.Repeat = rule
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// persistLocked writes the full list. The in-memory list stays authoritative
// when the write fails.
func (s *Store) persistLocked(ctx context.Context) error {
	raw, err := encode(s.events)
	if err != nil {
		return errors.NewPersistence(err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		appLog.Warn("store: write failed, keeping changes in memory", "key", s.key, "err", err)
		return errors.NewPersistence(err)
	}
	return nil
}

func sortedCopy(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sortEvents(out)
	return out
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartMinute != b.StartMinute {
			return a.StartMinute < b.StartMinute
		}
		if a.EndMinute != b.EndMinute {
			return a.EndMinute < b.EndMinute
		}
		return a.ID < b.ID
	})
}
