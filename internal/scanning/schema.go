package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNonEmptyString
	kindNumber
)

type receiptField struct {
	name     string
	kind     fieldKind
	required bool
}

// receiptFields is the per-receipt schema shared by validation and by the
// schemas handed to the oracles. Identity and the stored image are assigned
// after extraction, so the oracle is never asked for them.
var receiptFields = []receiptField{
	{name: "fileName", kind: kindString},
	{name: "date", kind: kindString, required: true},
	{name: "vendor", kind: kindString, required: true},
	{name: "category", kind: kindNonEmptyString, required: true},
	{name: "paymentMethod", kind: kindNonEmptyString, required: true},
	{name: "taxAmount", kind: kindNumber, required: true},
	{name: "amount", kind: kindNumber, required: true},
	{name: "thumbnail", kind: kindString},
}

const receiptSchemaURL = "receipts.schema.json"

var (
	receiptSchema = mustCompileSchema()
	issuePrinter  = message.NewPrinter(language.English)
	arrayIndex    = regexp.MustCompile(`^[0-9]+$`)
)

// mustCompileSchema compiles jsonSchema for validation. The schema is built
// from receiptFields, so a failure here is a programming error.
func mustCompileSchema() *jsonschema.Schema {
	raw, err := json.Marshal(jsonSchema())
	if err != nil {
		panic(fmt.Sprintf("marshaling receipt schema: %v", err))
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("decoding receipt schema: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(receiptSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("adding receipt schema: %v", err))
	}
	return c.MustCompile(receiptSchemaURL)
}

// validateReceipts checks a decoded document against the receipt schema and
// returns every violation, sorted, as "path: message".
func validateReceipts(doc any) []string {
	err := receiptSchema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{"root: " + err.Error()}
	}

	var issues []string
	collectIssues(verr, &issues)
	slices.Sort(issues)
	return slices.Compact(issues)
}

// collectIssues walks the error tree down to the failing keywords. Missing
// properties are reported at the property's own path.
func collectIssues(verr *jsonschema.ValidationError, issues *[]string) {
	if len(verr.Causes) == 0 {
		if required, ok := verr.ErrorKind.(*kind.Required); ok {
			for _, prop := range required.Missing {
				*issues = append(*issues, instancePath(append(slices.Clone(verr.InstanceLocation), prop))+": required")
			}
			return
		}
		*issues = append(*issues, instancePath(verr.InstanceLocation)+": "+verr.ErrorKind.LocalizedString(issuePrinter))
		return
	}
	for _, cause := range verr.Causes {
		collectIssues(cause, issues)
	}
}

// instancePath renders a location like ["receipts", "0", "amount"] as
// receipts[0].amount
func instancePath(location []string) string {
	if len(location) == 0 {
		return "root"
	}
	var sb strings.Builder
	for i, token := range location {
		switch {
		case arrayIndex.MatchString(token):
			sb.WriteString("[" + token + "]")
		case i > 0:
			sb.WriteString("." + token)
		default:
			sb.WriteString(token)
		}
	}
	return sb.String()
}

// jsonSchema returns the receipt document schema as JSON Schema, the form
// Ollama accepts in its format field and the one validation compiles.
func jsonSchema() map[string]any {
	props := make(map[string]any, len(receiptFields))
	var required []string
	for _, f := range receiptFields {
		prop := map[string]any{"type": "string"}
		switch f.kind {
		case kindNumber:
			prop["type"] = "number"
		case kindNonEmptyString:
			prop["minLength"] = 1
		}
		props[f.name] = prop
		if f.required {
			required = append(required, f.name)
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"receipts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		},
		"required": []string{"receipts"},
	}
}

// geminiSchema is the same document schema expressed for the Gemini API.
func geminiSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(receiptFields))
	var required []string
	for _, f := range receiptFields {
		typ := genai.TypeString
		if f.kind == kindNumber {
			typ = genai.TypeNumber
		}
		props[f.name] = &genai.Schema{Type: typ}
		if f.required {
			required = append(required, f.name)
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"receipts": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: props,
					Required:   required,
				},
			},
		},
		Required: []string{"receipts"},
	}
}
