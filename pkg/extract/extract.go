package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

// Extractor recovers plain text from uploaded documents so they can be
// compared against chapter contents. Binary formats whose text cannot be
// recovered yield an empty string rather than an error; the similarity
// check treats a missing transcript as a full mismatch.
type Extractor struct {
	policy *bluemonday.Policy
}

// New constructs a plain-text extractor.
func New() *Extractor {
	return &Extractor{policy: bluemonday.StrictPolicy()}
}

// Extract reads the document and returns its textual content.
func (e *Extractor) Extract(name string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", name, err)
	}

	mime := mimetype.Detect(data)
	switch {
	case mime.Is("text/plain"):
		return strings.TrimSpace(string(data)), nil
	case mime.Is("text/html"):
		return strings.TrimSpace(e.policy.Sanitize(string(data))), nil
	default:
		return "", nil
	}
}
