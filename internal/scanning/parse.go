package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dateLayouts are the non-canonical forms the oracle has been seen to emit
// despite being told to use YYYY-MM-DD.
var dateLayouts = []string{
	"2006-1-2",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC3339,
}

// parseReceipts decodes and validates the oracle's answer
func parseReceipts(content string) ([]RawReceipt, error) {
	text := stripCodeFence(content)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	if issues := validateReceipts(doc); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	var data struct {
		Receipts []RawReceipt `json:"receipts"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	receipts := data.Receipts
	if receipts == nil {
		receipts = []RawReceipt{}
	}
	for i := range receipts {
		receipts[i].Date = canonicalDate(receipts[i].Date)
	}
	return receipts, nil
}

// stripCodeFence removes a markdown code block wrapped around the document.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// canonicalDate rewrites recognizable dates to YYYY-MM-DD. Anything else is
// returned unchanged.
func canonicalDate(date string) string {
	trimmed := strings.TrimSpace(date)
	if _, err := time.Parse(dateLayout, trimmed); err == nil {
		return trimmed
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, trimmed); err == nil {
			return d.Format(dateLayout)
		}
	}
	return date
}
