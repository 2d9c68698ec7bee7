package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadItemParsesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	body := `{
	  "content_id": "story-1",
	  "context": {"locale": "fi", "country": "FI", "topic": "central_banking",
	              "complexity": 0.8, "risk": 0.5, "source_reputation": 0.9},
	  "sources": ["https://example.org/release"]
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write item: %v", err)
	}

	item, err := readItem(path)
	if err != nil {
		t.Fatalf("readItem: %v", err)
	}
	if item.ContentID != "story-1" {
		t.Fatalf("unexpected content id %s", item.ContentID)
	}
	if item.Context.Locale != "fi" || item.Context.Complexity != 0.8 {
		t.Fatalf("context not parsed: %+v", item.Context)
	}
	if len(item.Sources) != 1 {
		t.Fatalf("sources not parsed: %v", item.Sources)
	}
}

func TestReadItemRequiresContentID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	if err := os.WriteFile(path, []byte(`{"context": {"locale": "en"}}`), 0o644); err != nil {
		t.Fatalf("write item: %v", err)
	}
	if _, err := readItem(path); err == nil {
		t.Fatal("expected error for missing content_id")
	}
}

func TestReadItemRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write item: %v", err)
	}
	if _, err := readItem(path); err == nil {
		t.Fatal("expected parse error")
	}
}
