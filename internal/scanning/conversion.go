package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
)

// pdfToPNG renders the first page of a PDF as PNG
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most receipts are a single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

// heicToPNG decodes an iPhone HEIC/HEIF photo, which the standard image
// package cannot read, and re-encodes it as PNG.
func heicToPNG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// DetectMIMEType sniffs the content type of an uploaded image, recognizing
// HEIC which net/http does not.
func DetectMIMEType(data []byte) string {
	if isHEICFormat(data) {
		return "image/heic"
	}
	mimeType := http.DetectContentType(data)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}

// passthroughTypes are the image types every oracle accepts as-is
var passthroughTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// prepareImage returns the bytes to send to the oracle and their MIME type.
// PNG, JPEG and WEBP pass through; anything else is transcoded to PNG.
func prepareImage(data []byte) ([]byte, string, error) {
	mimeType := DetectMIMEType(data)
	switch {
	case mimeType == "image/heic":
		out, err := heicToPNG(data)
		if err != nil {
			return nil, "", err
		}
		return out, "image/png", nil
	case mimeType == "application/pdf":
		out, err := pdfToPNG(data)
		if err != nil {
			return nil, "", err
		}
		return out, "image/png", nil
	case passthroughTypes[mimeType]:
		return data, mimeType, nil
	}

	// GIF, BMP, TIFF and anything else the registered decoders can read
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: unsupported image format %q. Supported formats: JPEG, PNG, GIF, WEBP, BMP, TIFF, HEIC, HEIF, PDF", ErrInvalidInput, mimeType)
	}
	out, err := encodePNG(img)
	if err != nil {
		return nil, "", err
	}
	return out, "image/png", nil
}
