// Package extract turns a site's combined text into a JSON document that
// follows a caller-supplied schema.
package extract

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/model"
)

// Extractor produces a structured document from free text.
type Extractor interface {
	Extract(ctx context.Context, text string, schema json.RawMessage) (json.RawMessage, *model.TokenUsage, error)
}

// LoadSchema reads a JSON schema file and checks that it is a JSON object.
func LoadSchema(path string) (json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read schema %s", path)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, eris.Wrapf(err, "extract: schema %s is not a JSON object", path)
	}
	return json.RawMessage(b), nil
}

// requiredKeys returns the top-level "required" list of a schema.
func requiredKeys(schema json.RawMessage) []string {
	var s struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Required
}
