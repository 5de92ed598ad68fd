package receipt

import "encoding/base64"

// Receipt is a normalized receipt. It is never modified after normalization.
type Receipt struct {
	ID            string  `json:"id"`
	FileName      string  `json:"fileName"`
	Date          string  `json:"date"` // YYYY-MM-DD
	Vendor        string  `json:"vendor"`
	Category      string  `json:"category"`
	PaymentMethod string  `json:"paymentMethod"`
	TaxAmount     float64 `json:"taxAmount"`
	Amount        float64 `json:"amount"`
	Thumbnail     string  `json:"thumbnail"`
	Base64        string  `json:"base64"`   // source image, as submitted
	MIMEType      string  `json:"mimeType"` // source image type
}

// SpendingCategory is the total for one category
type SpendingCategory struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Percentage int     `json:"percentage"`
}

// Breakdown is spending by category, largest first
type Breakdown struct {
	Categories    []SpendingCategory `json:"categories"`
	TotalSpending float64            `json:"totalSpending"`
	TotalReceipts int                `json:"totalReceipts"`
}

// Snapshot is the persisted form of a session
type Snapshot struct {
	Receipts  []Receipt  `json:"receipts"`
	Breakdown *Breakdown `json:"breakdown"`
	Base64s   []string   `json:"base64s"`
	MIMETypes []string   `json:"mimeTypes"`
}

// State is the receipt collection with its breakdown. Breakdown is nil iff
// there are no receipts.
type State struct {
	Receipts  []Receipt  `json:"receipts"`
	Breakdown *Breakdown `json:"breakdown"`
}

// SourceImage is one image submitted for extraction
type SourceImage struct {
	Name     string
	Base64   string // raw base64 payload, no data URI prefix
	MIMEType string
}

// NewSourceImage encodes raw image bytes for submission
func NewSourceImage(name string, data []byte, mimeType string) SourceImage {
	return SourceImage{
		Name:     name,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
	}
}
