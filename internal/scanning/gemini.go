package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Oracle interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewGemini creates a new Gemini Oracle instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		timeout:   60 * time.Second,
	}, nil
}

// Complete sends the image with the instructions as system guidance and asks
// for JSON matching the receipt schema.
func (g *Gemini) Complete(ctx context.Context, req OracleRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.Instructions)},
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema()
	model.SetTemperature(0)

	// genai.ImageData expects just the format suffix (e.g. "png"), not the full MIME type
	format := strings.TrimPrefix(req.MIMEType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, req.Image),
		genai.Text(req.Prompt),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
