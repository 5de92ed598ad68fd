package receipt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zombor/receipt-hero/internal/scanning"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random (version 4) UUIDs
type uuidGenerator struct{}

// NewUUIDGenerator returns the default IDGenerator
func NewUUIDGenerator() IDGenerator {
	return &uuidGenerator{}
}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Normalize turns a raw extracted receipt into a Receipt. It never fails:
// every receipt gets a fresh id, missing optional fields get defaults, and the
// stored image is always the submitted source rather than anything the oracle
// claims.
func Normalize(raw scanning.RawReceipt, src SourceImage, ids IDGenerator) Receipt {
	fileName := raw.FileName
	if fileName == "" {
		fileName = src.Name
	}

	thumbnail := raw.Thumbnail
	if thumbnail == "" {
		thumbnail = fmt.Sprintf("data:%s;base64,%s", src.MIMEType, src.Base64)
	}

	return Receipt{
		ID:            ids.Generate(),
		FileName:      fileName,
		Date:          raw.Date,
		Vendor:        raw.Vendor,
		Category:      raw.Category,
		PaymentMethod: raw.PaymentMethod,
		TaxAmount:     raw.TaxAmount,
		Amount:        raw.Amount,
		Thumbnail:     thumbnail,
		Base64:        src.Base64,
		MIMEType:      src.MIMEType,
	}
}
