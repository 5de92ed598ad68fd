package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
)

// extractionInstructions is the system guidance shared by all oracles
const extractionInstructions = `You are an expert at extracting receipt data. Extract all receipts from the image as a JSON object matching the schema.

CRITICAL FORMATTING REQUIREMENTS:
- Date MUST be in YYYY-MM-DD format (e.g., "2024-01-15", not "01/15/2024" or "Jan 15, 2024")
- Convert any date format to YYYY-MM-DD
- If date is ambiguous, use the most recent logical date

CATEGORIZATION RULES:
- Grocery stores (Walmart, Target, Kroger, Safeway, Whole Foods, Trader Joe's, Costco, Sam's Club, Aldi, Publix, Wegmans): "groceries"
- Restaurants/Fast food (McDonald's, Starbucks, Chipotle, Taco Bell, Subway, etc.): "dining"
- Gas stations (Shell, Exxon, Chevron, BP, Speedway, etc.): "gas"
- Pharmacies (CVS, Walgreens, Rite Aid, etc.): "healthcare"
- Department stores (Macy's, Kohl's, JCPenney, etc.): "shopping"
- Electronics (Best Buy, Apple Store, etc.): "electronics"
- Home improvement (Home Depot, Lowe's, etc.): "home"
- Clothing (Gap, Old Navy, H&M, etc.): "clothing"
- Online services (Amazon, eBay, etc.): "shopping"
- Utilities (electric, gas, water, internet): "utilities"
- Entertainment (movies, concerts, etc.): "entertainment"
- Travel (hotels, airlines, etc.): "travel"
- Other: Use your best judgment to categorize appropriately

PAYMENT METHODS: Common values include "cash", "credit", "debit", "check", "gift card", "digital wallet"

Amounts are numbers in dollars and cents (42.75, not "$42.75"). A photo may contain several receipts; return one entry per receipt.

Extract all visible receipt data accurately. If information is not visible, use reasonable defaults or omit if not applicable.
Respond ONLY with the JSON document. Do not include any text before or after it and do not use markdown code blocks.`

const extractionPrompt = "Extract receipt data from this image following the formatting and categorization rules."

// Gateway performs one structured extraction per image against an Oracle
// and enforces the receipt schema on the answer.
type Gateway struct {
	oracle Oracle
}

// NewGateway creates a Gateway backed by the given oracle
func NewGateway(oracle Oracle) *Gateway {
	return &Gateway{oracle: oracle}
}

// Extract decodes a raw base64 payload (no data URI prefix), asks the oracle
// for every receipt in it and validates the result. Failures are never retried.
func (g *Gateway) Extract(ctx context.Context, base64Image string) ([]RawReceipt, error) {
	if base64Image == "" {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(base64Image)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %v", ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidInput)
	}

	image, mimeType, err := prepareImage(data)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	content, err := g.oracle.Complete(ctx, OracleRequest{
		Instructions: extractionInstructions,
		Prompt:       extractionPrompt,
		Image:        image,
		MIMEType:     mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	receipts, err := parseReceipts(content)
	if err != nil {
		slog.Warn("Oracle response rejected", "error", err, "response_size", len(content))
		return nil, err
	}
	return receipts, nil
}
