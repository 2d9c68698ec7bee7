package feedback

// #region imports
import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region store-struct

// Store is an append-only JSONL event log. Records are never mutated;
// later feedback becomes a new record linked to the original event id.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates the parent directory if needed and returns a Store.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// #endregion

// #region log-event

// LogEvent appends one decision event and returns its generated id.
// user and editor feedback maps may be nil.
func (s *Store) LogEvent(contentID string, ctx Context, decision Decision, outcome Outcome, user, editor map[string]float64) (string, error) {
	now := time.Now().UTC()
	id := fmt.Sprintf("nw_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])

	ev := Event{
		TS:        now,
		ID:        id,
		Kind:      KindDecision,
		ContentID: contentID,
		Context:   &ctx,
		Decision:  &decision,
		Outcome:   &outcome,
		User:      user,
		Editor:    editor,
	}
	if err := s.append(ev); err != nil {
		return "", err
	}
	return id, nil
}

// #endregion

// #region append-feedback

// AppendFeedback appends a new record linked to an existing event.
// The original record is left untouched; the store stays append-only.
func (s *Store) AppendFeedback(eventID, kind string, data map[string]any) error {
	ev := Event{
		TS:           time.Now().UTC(),
		ID:           fmt.Sprintf("fb_%s", uuid.NewString()[:8]),
		Kind:         KindFeedback,
		ParentID:     eventID,
		FeedbackKind: kind,
		Data:         data,
	}
	return s.append(ev)
}

// #endregion

// #region read-events

// ReadEvents returns all events with timestamp >= now-windowDays.
// Malformed lines are logged and skipped; a corrupt record never aborts
// the whole read. A missing file yields an empty slice.
func (s *Store) ReadEvents(windowDays int) ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	cutoff := time.Now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)
	var events []Event

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Printf("[FEEDBACK] skipping malformed event at line %d: %v", lineNum, err)
			continue
		}
		if ev.TS.Before(cutoff) {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// #endregion

// #region append

func (s *Store) append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// #endregion
