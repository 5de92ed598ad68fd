package scanning

import (
	"context"
	"errors"
	"strings"
)

// Extraction failure kinds. Callers match them with errors.Is.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyResponse   = errors.New("empty response")
	ErrMalformedJSON   = errors.New("malformed json")
	ErrSchemaViolation = errors.New("schema violation")
	ErrTransport       = errors.New("transport failure")
)

// ValidationError is returned when the oracle output is JSON but does not
// satisfy the receipt schema. It matches ErrSchemaViolation.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Details()
}

// Details joins the collected schema diagnostics.
func (e *ValidationError) Details() string {
	return strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// RawReceipt is a receipt as returned by the oracle, before identity
// assignment and defaulting. It carries no id: identity is always assigned
// by the caller.
type RawReceipt struct {
	FileName     string  `json:"fileName,omitempty"`
	Date          string  `json:"date"`
	Vendor        string  `json:"vendor"`
	Category      string  `json:"category"`
	PaymentMethod string  `json:"paymentMethod"`
	TaxAmount     float64 `json:"taxAmount"`
	Amount        float64 `json:"amount"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
}

// Extractor turns one base64 encoded image into raw receipts.
type Extractor interface {
	Extract(ctx context.Context, base64Image string) ([]RawReceipt, error)
}

// OracleRequest is a single structured extraction call.
type OracleRequest struct {
	Instructions string
	Prompt       string
	Image        []byte
	MIMEType     string
}

// Oracle is a vision model that answers an OracleRequest with text that
// should be a JSON document matching the receipt schema.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (string, error)
	// Close releases any resources held by the oracle
	Close() error
}
