package store

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

// DecodePatch parses an RFC 6902 JSON Patch document.
func DecodePatch(data []byte) (jsonpatch.Patch, error) {
	ops, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	return ops, nil
}

// PatchDocument applies ops to a copy of doc.
func PatchDocument(doc Document, ops jsonpatch.Patch) (Document, error) {
	d, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	out, err := ops.Apply(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	var next Document
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("%w: patch result is not an object: %w", ErrInvalidPatch, err)
	}
	return next, nil
}
