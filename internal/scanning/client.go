package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error messages of the extraction endpoint
const (
	MsgMissingImage  = "Missing required field: base64Image"
	MsgInvalidImage  = "Invalid image"
	MsgEmptyResponse = "OCR extraction failed: empty response"
	MsgInvalidJSON   = "Invalid JSON from model"
	MsgValidation    = "Validation failed"
	MsgInternalError = "Internal error while performing OCR"
)

// ExtractPath is where the extraction endpoint is served
const ExtractPath = "/api/ocr"

// ExtractRequest is the body of POST /api/ocr
type ExtractRequest struct {
	Base64Image string `json:"base64Image"`
}

// ExtractResponse is the success body of POST /api/ocr
type ExtractResponse struct {
	Receipts []RawReceipt `json:"receipts"`
}

// ErrorBody is the failure body of POST /api/ocr
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HTTPError maps an extraction error onto the endpoint's status code and body.
func HTTPError(err error) (int, ErrorBody) {
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, ErrorBody{Error: MsgInvalidImage, Details: err.Error()}
	case errors.Is(err, ErrEmptyResponse):
		return http.StatusBadGateway, ErrorBody{Error: MsgEmptyResponse}
	case errors.Is(err, ErrMalformedJSON):
		return http.StatusBadGateway, ErrorBody{Error: MsgInvalidJSON}
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, ErrorBody{Error: MsgValidation, Details: validationErr.Details()}
	}
	return http.StatusInternalServerError, ErrorBody{Error: MsgInternalError}
}

// Client calls a remote extraction endpoint. It implements Extractor and
// turns the endpoint's status codes back into the extraction error kinds.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client for the service at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

// Extract posts one image to the endpoint
func (c *Client) Extract(ctx context.Context, base64Image string) ([]RawReceipt, error) {
	if base64Image == "" {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidInput)
	}

	jsonData, err := json.Marshal(ExtractRequest{Base64Image: base64Image})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ExtractPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling extraction endpoint: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var data ExtractResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMalformedJSON, err)
	}
	if data.Receipts == nil {
		data.Receipts = []RawReceipt{}
	}
	return data.Receipts, nil
}

func statusError(status int, body []byte) error {
	var errBody ErrorBody
	_ = json.Unmarshal(body, &errBody)

	switch {
	case status == http.StatusBadRequest && errBody.Details != "":
		return fmt.Errorf("%w: %s", ErrInvalidInput, errBody.Details)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, errBody.Error)
	case status == http.StatusUnprocessableEntity:
		return &ValidationError{Issues: []string{errBody.Details}}
	case status == http.StatusBadGateway && errBody.Error == MsgEmptyResponse:
		return ErrEmptyResponse
	case status == http.StatusBadGateway && errBody.Error == MsgInvalidJSON:
		return ErrMalformedJSON
	}
	return fmt.Errorf("%w: extraction endpoint error (status %d): %s", ErrTransport, status, string(body))
}
