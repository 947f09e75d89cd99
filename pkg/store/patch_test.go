package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPatchDocument(t *testing.T) {
	doc := Document{"id": "a", "tags": []any{"x"}, "n": 1.0}
	ops, err := DecodePatch([]byte(`[
		{"op": "add", "path": "/tags/-", "value": "y"},
		{"op": "remove", "path": "/n"},
		{"op": "add", "path": "/meta", "value": {"rev": 2}}
	]`))
	if err != nil {
		t.Fatalf("DecodePatch failed: %v", err)
	}

	got, err := PatchDocument(doc, ops)
	if err != nil {
		t.Fatalf("PatchDocument failed: %v", err)
	}

	want := Document{"id": "a", "tags": []any{"x", "y"}, "meta": map[string]any{"rev": 2.0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
	if _, ok := doc["n"]; !ok {
		t.Fatal("the input document must not change")
	}
}

func TestDecodePatch_Invalid(t *testing.T) {
	if _, err := DecodePatch([]byte(`not json`)); !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}
}
