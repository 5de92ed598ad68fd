package receipt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/zombor/receipt-hero/internal/scanning"
)

// maxFormSize bounds uploads; high-resolution phone photos are large
const maxFormSize = int64(50 << 20)

// tooLargeMessage describes a body rejected by http.MaxBytesReader
func tooLargeMessage(what string, limit int64) string {
	return fmt.Sprintf("%s too large. Maximum size is %dMB.", what, limit>>20)
}

// writeJSON writes v as the JSON response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an {"error": message} response
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleExtract runs one extraction and returns the raw receipts
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, tooLargeMessage("Image is", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, scanning.MsgMissingImage, http.StatusBadRequest)
		return
	}

	var base64Image string
	raw, ok := body["base64Image"]
	if !ok || json.Unmarshal(raw, &base64Image) != nil || base64Image == "" {
		jsonError(w, scanning.MsgMissingImage, http.StatusBadRequest)
		return
	}

	receipts, err := s.service.Extract(r.Context(), base64Image)
	if err != nil {
		slog.Error("Error extracting receipts", "error", err)
		code, errBody := scanning.HTTPError(err)
		writeJSON(w, code, errBody)
		return
	}

	writeJSON(w, http.StatusOK, scanning.ExtractResponse{Receipts: receipts})
}

// uploadResponse is the body returned after adding images
type uploadResponse struct {
	Receipts  []Receipt  `json:"receipts"`
	Breakdown *Breakdown `json:"breakdown"`
	Failures  []Failure  `json:"failures"`
}

// handleUploadReceipts extracts receipts from every uploaded image
func (s *Server) handleUploadReceipts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	if err := r.ParseMultipartForm(s.maxBodySize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, tooLargeMessage("Files are", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	headers := slices.Concat(r.MultipartForm.File["files"], r.MultipartForm.File["file"])
	if len(headers) == 0 {
		jsonError(w, "No files were selected. Please choose images to upload.", http.StatusBadRequest)
		return
	}

	images := make([]SourceImage, 0, len(headers))
	for _, header := range headers {
		img, err := readSourceImage(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		images = append(images, img)
	}

	// Extractions run to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	state, failures, err := s.service.AddImages(ctx, images)
	if err != nil {
		slog.Error("Error adding receipts", "error", err)
		jsonError(w, "Error saving receipts", http.StatusInternalServerError)
		return
	}

	if failures == nil {
		failures = []Failure{}
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Receipts:  state.Receipts,
		Breakdown: state.Breakdown,
		Failures:  failures,
	})
}

// readSourceImage reads one uploaded file
func readSourceImage(header *multipart.FileHeader) (SourceImage, error) {
	f, err := header.Open()
	if err != nil {
		return SourceImage{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return SourceImage{}, err
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = scanning.DetectMIMEType(data)
	}
	return NewSourceImage(header.Filename, data, contentType), nil
}

// handleListReceipts returns every receipt with the breakdown
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.State())
}

// handleGetBreakdown returns the breakdown, or null for an empty session
func (s *Server) handleGetBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.State().Breakdown)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptImage returns the source image a receipt was extracted from
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	data, err := base64.StdEncoding.DecodeString(receipt.Base64)
	if err != nil || len(data) == 0 {
		jsonError(w, "Image not available", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", receipt.MIMEType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt and returns the new state
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.DeleteReceipt(r.PathValue("id"))
	if err != nil {
		slog.Error("Error deleting receipt", "error", err)
		jsonError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleClearReceipts removes every receipt
func (s *Server) handleClearReceipts(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Clear(); err != nil {
		slog.Error("Error clearing receipts", "error", err)
		jsonError(w, "Error clearing receipts", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
