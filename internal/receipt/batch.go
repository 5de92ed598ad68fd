package receipt

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-hero/internal/scanning"
)

// Failure reports one source image that contributed no receipts
type Failure struct {
	Index    int    `json:"index"`
	FileName string `json:"fileName"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func (f Failure) Error() string {
	return f.FileName + ": " + f.Message
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Processor fans a batch of images out to an Extractor and normalizes the
// results.
type Processor struct {
	extractor   scanning.Extractor
	idGenerator IDGenerator
	concurrency int
}

// NewProcessor creates a Processor that runs every extraction of a batch at
// once and assigns random IDs.
func NewProcessor(extractor scanning.Extractor) *Processor {
	return NewProcessorWithDeps(extractor, NewUUIDGenerator(), 0)
}

// NewProcessorWithDeps creates a Processor with custom dependencies. A
// concurrency of 0 or less means no limit.
func NewProcessorWithDeps(extractor scanning.Extractor, idGen IDGenerator, concurrency int) *Processor {
	return &Processor{
		extractor:   extractor,
		idGenerator: idGen,
		concurrency: concurrency,
	}
}

// ProcessBatch extracts every image concurrently. A failed image is logged,
// reported in the returned failures and contributes nothing; it never aborts
// the others. Receipts are grouped by source image in input order.
func (p *Processor) ProcessBatch(ctx context.Context, images []SourceImage) ([]Receipt, []Failure) {
	results := make([][]Receipt, len(images))
	errs := make([]error, len(images))

	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for i, img := range images {
		g.Go(func() error {
			raw, err := p.extractor.Extract(ctx, img.Base64)
			if err != nil {
				errs[i] = err
				return nil
			}
			receipts := make([]Receipt, 0, len(raw))
			for _, r := range raw {
				receipts = append(receipts, Normalize(r, img, p.idGenerator))
			}
			results[i] = receipts
			return nil
		})
	}
	// Workers never return an error
	_ = g.Wait()

	var (
		receipts []Receipt
		failures []Failure
	)
	for i, img := range images {
		if errs[i] != nil {
			slog.Error("Failed to extract receipts",
				"filename", img.Name,
				"mime_type", img.MIMEType,
				"index", i,
				"error", errs[i],
			)
			failures = append(failures, Failure{
				Index:    i,
				FileName: img.Name,
				Err:      errs[i],
				Message:  errs[i].Error(),
			})
			continue
		}
		receipts = append(receipts, results[i]...)
	}

	if receipts == nil {
		receipts = []Receipt{}
	}
	return receipts, failures
}
