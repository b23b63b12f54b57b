package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicenotes/log"
)

const DefaultAutoSaveInterval = 2 * time.Second

var (
	ErrCorrupt  = errors.New("stored notes could not be parsed")
	ErrNotFound = errors.New("note not found")
)

// Persistence is the durable blob store behind a Store.
type Persistence interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, blob []byte) error
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithIDs(newID func() string) Option { return func(s *Store) { s.newID = newID } }

func WithKey(key string) Option { return func(s *Store) { s.key = key } }

// WithSaveHook registers fn to be called after every durable write with
// the reason for it.
func WithSaveHook(fn func(reason string)) Option { return func(s *Store) { s.onSave = fn } }

// WithoutInitialNote leaves an empty collection empty on Open, for
// callers that only read.
func WithoutInitialNote() Option { return func(s *Store) { s.noInitial = true } }

// Store is the ordered note collection, its durable mirror and the one
// active note being edited. The active note is a copy; every write path
// finds the stored entry by id and overwrites it.
type Store struct {
	db     Persistence
	key    string
	now    func() time.Time
	newID  func() string
	onSave func(reason string)

	noInitial bool

	mu     sync.Mutex
	notes  []Note
	active Note
	view   View
	last   fields
}

// Open loads the collection and activates the most recent note, creating
// one when the collection is empty unless WithoutInitialNote is given. An unparseable blob is logged and
// treated as an empty collection.
func Open(db Persistence, opts ...Option) (*Store, error) {
	s := &Store{
		db:    db,
		key:   StorageKey,
		now:   time.Now,
		newID: func() string { return "note_" + uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}

	blob, ok, err := db.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	if ok && len(blob) > 0 {
		if err := json.Unmarshal(blob, &s.notes); err != nil {
			log.Warnf("%v: %v", ErrCorrupt, err)
			s.notes = nil
		}
	}
	s.notes = dedupe(s.notes)
	sortNotes(s.notes)

	if len(s.notes) > 0 {
		s.activateLocked(s.notes[0])
		return s, nil
	}
	if s.noInitial {
		return s, nil
	}
	if _, err := s.New(); err != nil {
		return nil, err
	}
	return s, nil
}

func dedupe(list []Note) []Note {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, n := range list {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }

// stamp never moves a note's timestamp backwards.
func (s *Store) stamp(prev int64) int64 {
	return max(s.nowMs(), prev)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked() error {
	sortNotes(s.notes)
	blob, err := json.Marshal(s.notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if err := s.db.Set(s.key, blob); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}

func (s *Store) saved(noteID, reason string, err error) {
	if err != nil {
		log.Errorf("%s: %v", reason, err)
		return
	}
	log.Saved(noteID, reason)
	if s.onSave != nil {
		s.onSave(reason)
	}
}

func (s *Store) activateLocked(n Note) {
	s.active = n
	s.view = viewOf(n)
	s.last = fieldsOf(n)
}

// Notes returns the collection, most recent first.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

func (s *Store) Get(id string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.notes[i], true
	}
	return Note{}, false
}

// Active returns a copy of the active note.
func (s *Store) Active() Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// New creates an empty note, places it first, persists the collection and
// makes the note active.
func (s *Store) New() (Note, error) {
	s.mu.Lock()
	n := Note{ID: s.newID(), Title: PlaceholderTitle, Timestamp: s.nowMs()}
	s.notes = append([]Note{n}, s.notes...)
	s.activateLocked(n)
	err := s.persistLocked()
	s.mu.Unlock()
	s.saved(n.ID, "create", err)
	return n, err
}

// Load makes the stored note id active.
func (s *Store) Load(id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Note{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.activateLocked(s.notes[i])
	return s.active, nil
}

// Delete removes note id. When it was active, the most recent remaining
// note becomes active, or a fresh one is created when none remain.
func (s *Store) Delete(id string) (Note, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Note{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.notes = append(s.notes[:i], s.notes[i+1:]...)
	err := s.persistLocked()
	wasActive := s.active.ID == id
	if wasActive && len(s.notes) > 0 {
		s.activateLocked(s.notes[0])
	}
	active := s.active
	s.mu.Unlock()
	s.saved(id, "delete", err)
	if err != nil {
		return active, err
	}

	if wasActive && active.ID == id {
		return s.New()
	}
	return active, nil
}

// SetTitle renames the active note and writes the title through to its
// stored entry at once. A blank title reverts to the placeholder.
func (s *Store) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	s.mu.Lock()
	if title == "" {
		title = PlaceholderTitle
		s.view.Title = PlaceholderField()
	} else {
		s.view.Title = ContentField(title)
	}
	s.active.Title = title
	s.last.title = title
	id := s.active.ID
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.notes[i].Title = title
	err := s.persistLocked()
	s.mu.Unlock()
	s.saved(id, "title", err)
	return err
}

// EditRaw replaces the raw transcript shown for the active note. It is
// stored by the next autosave.
func (s *Store) EditRaw(text string) {
	s.mu.Lock()
	s.view.Raw = ContentField(text)
	s.mu.Unlock()
}

// EditPolished replaces the polished body shown for the active note. It
// is stored by the next autosave.
func (s *Store) EditPolished(text string) {
	s.mu.Lock()
	s.view.Polished = ContentField(text)
	s.mu.Unlock()
}

// AutoSave copies the active note's fields into its stored entry when any
// of them changed since the last save. It reports whether it wrote. A
// note deleted in the meantime is skipped without error.
func (s *Store) AutoSave() (bool, error) {
	s.mu.Lock()
	saved, id, err := s.autoSaveLocked()
	s.mu.Unlock()
	if saved || err != nil {
		s.saved(id, "autosave", err)
	}
	return saved, err
}

func (s *Store) autoSaveLocked() (bool, string, error) {
	cur := s.view.logical()
	id := s.active.ID
	if cur == s.last {
		return false, id, nil
	}
	i := s.indexLocked(id)
	if i < 0 {
		return false, id, nil
	}
	n := &s.notes[i]
	n.Title, n.RawTranscription, n.PolishedNote = cur.title, cur.raw, cur.polished
	n.Timestamp = s.stamp(n.Timestamp)
	s.active = *n
	s.last = cur
	if err := s.persistLocked(); err != nil {
		return false, id, err
	}
	return true, id, nil
}

// RunAutoSave calls AutoSave every interval until ctx is done. report,
// when set, receives the outcome of each write.
func (s *Store) RunAutoSave(ctx context.Context, interval time.Duration, report func(saved bool, err error)) {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := s.AutoSave()
			if report != nil && (saved || err != nil) {
				report(saved, err)
			}
		}
	}
}

// Checkboxes lists the task markers of the active note's polished body.
func (s *Store) Checkboxes() []Checkbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ParseCheckboxes(s.view.Polished.Value())
}

// ToggleCheckbox sets the index-th task marker of the active note's
// polished Markdown and saves immediately.
func (s *Store) ToggleCheckbox(index int, checked bool) error {
	s.mu.Lock()
	src := s.view.Polished.Value()
	out, err := SetCheckbox(src, index, checked)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.view.Polished = ContentField(out)
	saved, id, err := s.autoSaveLocked()
	s.mu.Unlock()
	if saved || err != nil {
		s.saved(id, "checkbox", err)
	}
	return err
}

// ApplyTranscription stores a raw transcript for note id. The write is
// dropped when the note no longer exists. It reports whether it applied.
func (s *Store) ApplyTranscription(id, raw string) (bool, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	n := &s.notes[i]
	n.RawTranscription = raw
	n.Timestamp = s.stamp(n.Timestamp)
	if s.active.ID == id {
		s.active.RawTranscription = raw
		s.active.Timestamp = n.Timestamp
		s.view.Raw = ContentField(raw)
		s.last.raw = raw
	}
	err := s.persistLocked()
	s.mu.Unlock()
	s.saved(id, "transcription", err)
	return err == nil, err
}

// ApplyPolish stores the polished body and derived title for note id.
// Without a title the note keeps the placeholder title. Dropped when the
// note no longer exists.
func (s *Store) ApplyPolish(id, polished, title string, hasTitle bool) (bool, error) {
	if !hasTitle || strings.TrimSpace(title) == "" {
		title = PlaceholderTitle
		hasTitle = false
	}
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	n := &s.notes[i]
	n.PolishedNote = polished
	n.Title = title
	n.Timestamp = s.stamp(n.Timestamp)
	if s.active.ID == id {
		s.active.PolishedNote = polished
		s.active.Title = title
		s.active.Timestamp = n.Timestamp
		s.view.Polished = ContentField(polished)
		if hasTitle {
			s.view.Title = ContentField(title)
		} else {
			s.view.Title = PlaceholderField()
		}
		s.last.polished = polished
		s.last.title = title
	}
	err := s.persistLocked()
	s.mu.Unlock()
	s.saved(id, "polish", err)
	if err == nil {
		log.NoteText(id, title)
	}
	return err == nil, err
}

// RestorePlaceholders puts the placeholder back on every logically empty
// field of note id when it is active. Fields with content are kept.
func (s *Store) RestorePlaceholders(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.ID != id {
		return
	}
	if s.view.Title.Value() == "" {
		s.view.Title = PlaceholderField()
	}
	if s.view.Raw.Value() == "" {
		s.view.Raw = PlaceholderField()
	}
	if s.view.Polished.Value() == "" {
		s.view.Polished = PlaceholderField()
	}
}
