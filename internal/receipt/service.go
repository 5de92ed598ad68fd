package receipt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/receipt-hero/internal/scanning"
)

// Service handles receipt operations for one session
type Service struct {
	processor *Processor
	store     *Store
}

// NewService creates a new Service
func NewService(processor *Processor, store *Store) *Service {
	return &Service{
		processor: processor,
		store:     store,
	}
}

// AddImages extracts receipts from every image and adds the successes to
// the store in a single update once the whole batch has settled. Failed
// images are returned alongside the new state.
func (s *Service) AddImages(ctx context.Context, images []SourceImage) (State, []Failure, error) {
	receipts, failures := s.processor.ProcessBatch(ctx, images)

	slog.Info("Processed batch",
		"images", len(images),
		"receipts", len(receipts),
		"failures", len(failures),
	)

	state, err := s.store.AddReceipts(receipts)
	if err != nil {
		return state, failures, fmt.Errorf("adding receipts: %w", err)
	}
	return state, failures, nil
}

// DeleteReceipt removes a receipt
func (s *Service) DeleteReceipt(id string) (State, error) {
	state, err := s.store.DeleteReceipt(id)
	if err != nil {
		return state, fmt.Errorf("deleting receipt: %w", err)
	}
	return state, nil
}

// Clear removes every receipt
func (s *Service) Clear() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing receipts: %w", err)
	}
	return nil
}

// State returns the receipts and breakdown
func (s *Service) State() State {
	return s.store.State()
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (Receipt, error) {
	r, ok := s.store.Receipt(id)
	if !ok {
		return Receipt{}, fmt.Errorf("receipt not found: %s", id)
	}
	return r, nil
}

// Extract runs a single extraction without touching the store
func (s *Service) Extract(ctx context.Context, base64Image string) ([]scanning.RawReceipt, error) {
	return s.processor.extractor.Extract(ctx, base64Image)
}
