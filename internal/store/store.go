// Package store implements the append-only, indexed Classified Event store
// (spec.md C11), grounded on the teacher's adapter package's JSON-over-wire
// conventions, generalized from a Kafka producer into a durable local
// append log: a length-prefixed JSON-lines file with a leading
// {magic, version, schema_id} header record, an in-memory id->offset index
// and a time-sorted index, both rebuilt from the log on open. A sibling
// dead-letter log uses the same format for candidates that failed
// processing, per spec.md's store/dead-letter pairing.
package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

const (
	magic        = "SEISEVT1"
	formatVersion = 1
)

type header struct {
	Magic    string `json:"magic"`
	Version  int    `json:"version"`
	SchemaID string `json:"schema_id"`
}

// FsyncPolicy selects how aggressively the store flushes to disk.
type FsyncPolicy string

const (
	FsyncPerWrite FsyncPolicy = "per_write"
	FsyncPeriodic FsyncPolicy = "periodic"
)

type indexEntry struct {
	id     string
	offset int64
	t      time.Time
}

// Store is an append-only, durable, indexed log of ClassifiedEvents.
type Store struct {
	mu       sync.RWMutex
	file     *os.File
	writer   *bufio.Writer
	dead     *os.File
	deadW    *bufio.Writer
	policy   FsyncPolicy
	schemaID string

	byID    map[string]int64
	byTime  []indexEntry // kept sorted by t
	nextOff int64
}

// Open opens (creating if absent) the event store and dead-letter log
// under dir, rebuilding indexes from whatever is already on disk.
func Open(dir, schemaID string, policy FsyncPolicy) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "create store directory", err)
	}

	s := &Store{
		policy:   policy,
		schemaID: schemaID,
		byID:     make(map[string]int64),
	}

	eventsPath := filepath.Join(dir, "events.log")
	f, created, err := openOrCreate(eventsPath)
	if err != nil {
		return nil, err
	}
	s.file = f

	if created {
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
	} else {
		if err := s.rebuildIndex(); err != nil {
			return nil, err
		}
	}
	s.writer = bufio.NewWriter(s.file)
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return nil, apperr.Wrap(apperr.Corruption, "seek to end of store", err)
	}
	off, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, apperr.Wrap(apperr.Corruption, "determine store write offset", err)
	}
	s.nextOff = off

	deadPath := filepath.Join(dir, "dead_letter.log")
	dead, err := os.OpenFile(deadPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "open dead-letter log", err)
	}
	s.dead = dead
	s.deadW = bufio.NewWriter(dead)

	return s, nil
}

func openOrCreate(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Unavailable, "open store log", err)
	}
	return f, created, nil
}

func (s *Store) writeHeader() error {
	h := header{Magic: magic, Version: formatVersion, SchemaID: s.schemaID}
	data, err := json.Marshal(h)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal store header", err)
	}
	if err := writeFrame(s.file, data); err != nil {
		return apperr.Wrap(apperr.Unavailable, "write store header", err)
	}
	return nil
}

// rebuildIndex scans the log from the start, validating the header and
// populating byID/byTime from every record that follows.
func (s *Store) rebuildIndex() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return apperr.Wrap(apperr.Corruption, "seek store to start", err)
	}
	r := bufio.NewReader(s.file)

	headerBytes, _, err := readFrame(r)
	if err != nil {
		return apperr.Wrap(apperr.Corruption, "read store header", err)
	}
	var h header
	if err := json.Unmarshal(headerBytes, &h); err != nil || h.Magic != magic {
		return apperr.New(apperr.Corruption, "store header magic mismatch")
	}

	offset := int64(len(headerBytes)) + 4

	for {
		data, n, err := readFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperr.Wrap(apperr.Corruption, "store log truncated or corrupt", err)
		}
		var rec domain.ClassifiedEvent
		if err := json.Unmarshal(data, &rec); err != nil {
			return apperr.Wrap(apperr.Corruption, "store record undecodable", err)
		}
		s.byID[rec.ID] = offset
		s.byTime = append(s.byTime, indexEntry{id: rec.ID, offset: offset, t: rec.TriggerInstant()})
		offset += int64(n) + 4
	}

	sort.Slice(s.byTime, func(i, j int) bool { return s.byTime[i].t.Before(s.byTime[j].t) })
	return nil
}

// Append writes a ClassifiedEvent, updates indexes, and flushes per policy.
func (s *Store) Append(ev domain.ClassifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[ev.ID]; exists {
		return apperr.New(apperr.Validation, "duplicate event ID: "+ev.ID)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal classified event", err)
	}

	offset := s.nextOff
	if err := writeFrameBuffered(s.writer, data); err != nil {
		return apperr.Wrap(apperr.Unavailable, "append classified event", err)
	}
	if s.policy == FsyncPerWrite {
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.nextOff += int64(len(data)) + 4

	s.byID[ev.ID] = offset
	idx := indexEntry{id: ev.ID, offset: offset, t: ev.TriggerInstant()}
	i := sort.Search(len(s.byTime), func(i int) bool { return !s.byTime[i].t.Before(idx.t) })
	s.byTime = append(s.byTime, indexEntry{})
	copy(s.byTime[i+1:], s.byTime[i:])
	s.byTime[i] = idx

	return nil
}

// AppendDeadLetter records a candidate that failed processing, for audit
// and reprocessing.
func (s *Store) AppendDeadLetter(reason string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := map[string]any{"reason": reason, "payload": payload, "recorded_at": time.Now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal dead letter", err)
	}
	if err := writeFrameBuffered(s.deadW, data); err != nil {
		return apperr.Wrap(apperr.Unavailable, "append dead letter", err)
	}
	return s.deadW.Flush()
}

// Flush forces buffered writes to disk. Under FsyncPeriodic, Append only
// buffers; nothing in this package calls Flush on a timer.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	if err := s.writer.Flush(); err != nil {
		return apperr.Wrap(apperr.Unavailable, "flush store buffer", err)
	}
	if err := s.file.Sync(); err != nil {
		return apperr.Wrap(apperr.Unavailable, "fsync store", err)
	}
	return nil
}

// Get retrieves a ClassifiedEvent by ID.
func (s *Store) Get(id string) (domain.ClassifiedEvent, error) {
	s.mu.RLock()
	offset, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ClassifiedEvent{}, apperr.New(apperr.Validation, "no such event: "+id)
	}
	return s.readAt(offset)
}

// Query parameterizes Range per spec.md §4.11's
// query(timeRange, bbox?, labelFilter?, minMagnitude?). Start/End are
// required; Bbox (nil), Label (empty), and MinMagnitude (zero) each
// disable their filter.
type Query struct {
	Start        time.Time
	End          time.Time
	Bbox         *domain.BoundingBox
	Label        string
	MinMagnitude float64
}

// Range returns events with TriggerInstant in [q.Start, q.End] matching
// every configured filter, ordered by time ascending.
func (s *Store) Range(q Query) ([]domain.ClassifiedEvent, error) {
	s.mu.RLock()
	entries := make([]indexEntry, 0)
	lo := sort.Search(len(s.byTime), func(i int) bool { return !s.byTime[i].t.Before(q.Start) })
	for i := lo; i < len(s.byTime) && !s.byTime[i].t.After(q.End); i++ {
		entries = append(entries, s.byTime[i])
	}
	s.mu.RUnlock()

	out := make([]domain.ClassifiedEvent, 0, len(entries))
	for _, e := range entries {
		ev, err := s.readAt(e.offset)
		if err != nil {
			return nil, err
		}
		if !matchesQuery(ev, q) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func matchesQuery(ev domain.ClassifiedEvent, q Query) bool {
	if q.Bbox != nil {
		h := ev.Location.Hypocenter
		if !q.Bbox.Contains(h.Latitude, h.Longitude) {
			return false
		}
	}
	if q.Label != "" && ev.Classification.Label != q.Label {
		return false
	}
	if q.MinMagnitude != 0 && ev.Magnitude.Value < q.MinMagnitude {
		return false
	}
	return true
}

func (s *Store) readAt(offset int64) (domain.ClassifiedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return domain.ClassifiedEvent{}, apperr.Wrap(apperr.Unavailable, "flush before read", err)
	}
	// The file is not opened O_APPEND: return to the end afterwards so the
	// next Append writes after the last record, not over the one read here.
	defer func() { _, _ = s.file.Seek(0, io.SeekEnd) }()
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return domain.ClassifiedEvent{}, apperr.Wrap(apperr.Corruption, "seek store for read", err)
	}
	r := bufio.NewReader(s.file)
	data, _, err := readFrame(r)
	if err != nil {
		return domain.ClassifiedEvent{}, apperr.Wrap(apperr.Corruption, "read store record", err)
	}
	var ev domain.ClassifiedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.ClassifiedEvent{}, apperr.Wrap(apperr.Corruption, "decode store record", err)
	}
	return ev, nil
}

// Close flushes and closes the underlying files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.writer.Flush()
	_ = s.file.Sync()
	_ = s.deadW.Flush()
	_ = s.dead.Sync()
	if err := s.file.Close(); err != nil {
		return err
	}
	return s.dead.Close()
}

// writeFrame/readFrame implement the length-prefixed record framing shared
// by the header and every subsequent record: a 4-byte big-endian length
// followed by that many bytes of JSON.

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeFrameBuffered(w *bufio.Writer, data []byte) error {
	return writeFrame(w, data)
}

func readFrame(r *bufio.Reader) ([]byte, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, 0, apperr.New(apperr.Corruption, "truncated frame length")
		}
		return nil, 0, err
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:]))
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, 0, apperr.Wrap(apperr.Corruption, "truncated frame body", err)
	}
	return data, n, nil
}
