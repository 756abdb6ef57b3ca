package events

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stakingrewards/core/types"
	"stakingrewards/storage"
)

const (
	journalHeadKey     = "events/head"
	journalEntryPrefix = "events/entry/"
	defaultPageLimit   = 200
	subscriberBuffer   = 64
)

// Journal persists emitted events with a monotonically increasing sequence and
// fans them out to live subscribers.
type Journal struct {
	db     storage.Database
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	head   uint64
	nextID int
	subs   map[int]chan types.Event
}

// NewJournal opens the journal stored in db, resuming after the last persisted
// sequence.
func NewJournal(db storage.Database, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("events journal: database not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger, now: time.Now, subs: make(map[int]chan types.Event)}
	raw, err := db.Get([]byte(journalHeadKey))
	switch {
	case err == nil:
		if len(raw) != 8 {
			return nil, fmt.Errorf("events journal: corrupt head")
		}
		j.head = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("events journal: load head: %w", err)
	}
	return j, nil
}

// SetNowFunc overrides the clock used to stamp events.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if j == nil || now == nil {
		return
	}
	j.mu.Lock()
	j.now = now
	j.mu.Unlock()
}

// Emit implements the Emitter interface. Persistence failures are logged; the
// state transition that produced the event has already committed.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	if _, err := j.Append(evt.Event()); err != nil {
		j.logger.Error("journal event", "type", evt.EventType(), "error", err)
	}
}

// Append stores the event and returns it with its assigned sequence.
func (j *Journal) Append(evt *types.Event) (types.Event, error) {
	if evt == nil {
		return types.Event{}, fmt.Errorf("events journal: nil event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	stored := types.Event{
		Sequence:   j.head + 1,
		Timestamp:  uint64(j.now().UTC().Unix()),
		Type:       evt.Type,
		Attributes: make(map[string]string, len(evt.Attributes)),
	}
	for k, v := range evt.Attributes {
		stored.Attributes[k] = v
	}
	encoded, err := json.Marshal(stored)
	if err != nil {
		return types.Event{}, fmt.Errorf("events journal: encode: %w", err)
	}
	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, stored.Sequence)

	batch := j.db.NewBatch()
	batch.Put(entryKey(stored.Sequence), encoded)
	batch.Put([]byte(journalHeadKey), head)
	if err := batch.Write(); err != nil {
		return types.Event{}, fmt.Errorf("events journal: write: %w", err)
	}
	j.head = stored.Sequence

	for id, ch := range j.subs {
		select {
		case ch <- stored:
		default:
			// Slow consumers are dropped and must resume from their cursor.
			close(ch)
			delete(j.subs, id)
		}
	}
	return stored, nil
}

// Head returns the sequence of the most recent event.
func (j *Journal) Head() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head
}

// List returns up to limit events with a sequence strictly greater than after.
func (j *Journal) List(after uint64, limit int) ([]types.Event, error) {
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}
	out := make([]types.Event, 0, limit)
	var decodeErr error
	err := j.db.Iterate([]byte(journalEntryPrefix), func(key, value []byte) bool {
		seq := binary.BigEndian.Uint64(key[len(journalEntryPrefix):])
		if seq <= after {
			return true
		}
		var evt types.Event
		if err := json.Unmarshal(value, &evt); err != nil {
			decodeErr = fmt.Errorf("events journal: decode %d: %w", seq, err)
			return false
		}
		out = append(out, evt)
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// Subscribe registers a live listener. The returned cancel function must be
// called to release it; the channel is closed on cancel or when the listener
// falls too far behind.
func (j *Journal) Subscribe() (<-chan types.Event, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextID
	j.nextID++
	ch := make(chan types.Event, subscriberBuffer)
	j.subs[id] = ch
	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if existing, ok := j.subs[id]; ok {
			close(existing)
			delete(j.subs, id)
		}
	}
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(journalEntryPrefix)+8)
	copy(key, journalEntryPrefix)
	binary.BigEndian.PutUint64(key[len(journalEntryPrefix):], seq)
	return key
}
