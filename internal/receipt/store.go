package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// SnapshotKey is the key the session snapshot is stored under
const SnapshotKey = "receipt-hero-data"

// KV is the persistence collaborator: a store of whole documents by key.
type KV interface {
	// Get returns the value stored under key, or nil if there is none
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Store owns the receipt collection of a session and its breakdown. Every
// mutation recomputes the breakdown from the full collection and writes the
// snapshot through to the KV before it becomes visible.
type Store struct {
	mu        sync.RWMutex
	kv        KV
	receipts  []Receipt
	breakdown *Breakdown
}

// NewStore creates an empty Store persisting to kv
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Initialize loads the persisted snapshot. A missing or unreadable snapshot
// leaves the store empty.
func (s *Store) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receipts = nil
	s.breakdown = nil

	data, err := s.kv.Get(SnapshotKey)
	if err != nil {
		slog.Warn("Failed to read snapshot, starting empty", "error", err)
		return
	}
	if data == nil {
		return
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Failed to decode snapshot, starting empty", "error", err)
		return
	}

	receipts := restoreImages(snap)
	if len(receipts) == 0 {
		return
	}
	// The breakdown is derived data; recompute rather than trust the stored copy
	breakdown := Aggregate(receipts)
	s.receipts = receipts
	s.breakdown = &breakdown

	slog.Info("Loaded snapshot", "receipts", len(receipts))
}

// restoreImages fills a receipt's source image from the parallel arrays when
// the receipt itself does not carry it.
func restoreImages(snap Snapshot) []Receipt {
	receipts := slices.Clone(snap.Receipts)
	for i := range receipts {
		if receipts[i].Base64 == "" && i < len(snap.Base64s) {
			receipts[i].Base64 = snap.Base64s[i]
		}
		if receipts[i].MIMEType == "" && i < len(snap.MIMETypes) {
			receipts[i].MIMEType = snap.MIMETypes[i]
		}
	}
	return receipts
}

// AddReceipts appends receipts to the collection
func (s *Store) AddReceipts(newReceipts []Receipt) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]Receipt, 0, len(s.receipts)+len(newReceipts))
	updated = append(updated, s.receipts...)
	updated = append(updated, newReceipts...)

	if err := s.commit(updated); err != nil {
		return s.state(), err
	}
	return s.state(), nil
}

// DeleteReceipt removes the receipt with the given ID. Unknown IDs are ignored.
func (s *Store) DeleteReceipt(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.receipts, func(r Receipt) bool { return r.ID == id })
	if idx < 0 {
		return s.state(), nil
	}

	updated := slices.Delete(slices.Clone(s.receipts), idx, idx+1)
	if err := s.commit(updated); err != nil {
		return s.state(), err
	}
	return s.state(), nil
}

// Clear empties the collection and removes the snapshot entirely
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(SnapshotKey); err != nil {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	s.receipts = nil
	s.breakdown = nil
	return nil
}

// State returns a copy of the current collection and breakdown
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state()
}

// Receipt returns the receipt with the given ID
func (s *Store) Receipt(id string) (Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.receipts {
		if r.ID == id {
			return r, true
		}
	}
	return Receipt{}, false
}

// commit persists receipts with their breakdown and then makes them current.
// Callers hold the write lock.
func (s *Store) commit(receipts []Receipt) error {
	var breakdown *Breakdown
	if len(receipts) > 0 {
		b := Aggregate(receipts)
		breakdown = &b
	}

	snap := Snapshot{
		Receipts:  receipts,
		Breakdown: breakdown,
		Base64s:   make([]string, len(receipts)),
		MIMETypes: make([]string, len(receipts)),
	}
	if snap.Receipts == nil {
		snap.Receipts = []Receipt{}
	}
	for i, r := range receipts {
		snap.Base64s[i] = r.Base64
		snap.MIMETypes[i] = r.MIMEType
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.kv.Put(SnapshotKey, data); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	if len(receipts) == 0 {
		receipts = nil
	}
	s.receipts = receipts
	s.breakdown = breakdown
	return nil
}

func (s *Store) state() State {
	receipts := make([]Receipt, len(s.receipts))
	copy(receipts, s.receipts)

	var breakdown *Breakdown
	if s.breakdown != nil {
		b := *s.breakdown
		b.Categories = slices.Clone(s.breakdown.Categories)
		breakdown = &b
	}
	return State{Receipts: receipts, Breakdown: breakdown}
}
