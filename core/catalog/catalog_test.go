package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() == 0 {
		t.Fatalf("embedded catalog is empty")
	}
	if _, ok := c.Find("P101"); !ok {
		t.Fatalf("expected P101 in embedded catalog")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.yaml")
	doc := "listings:\n  - id: X1\n    title: Loft\n    city: Goa\n    price: ₹40L\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	l, ok := c.Find("x1")
	if !ok || l.Title != "Loft" || l.City != "Goa" {
		t.Fatalf("unexpected listing %+v (found=%v)", l, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Listing{{ID: "A1"}, {ID: "a1"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := New([]Listing{{Title: "no id"}}); err == nil {
		t.Fatalf("expected error for listing without id")
	}
}

func TestSearchMatchesCityAndLocality(t *testing.T) {
	c, err := New([]Listing{
		{ID: "A1", City: "Pune", Locality: "Baner"},
		{ID: "A2", City: "Mumbai", Locality: "Pune Road"},
		{ID: "A3", City: "Mumbai", Locality: "Bandra"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got := c.Search("PUNE", 0)
	if len(got) != 2 || got[0].ID != "A1" {
		t.Fatalf("unexpected results %+v", got)
	}
	if got := c.Search("flat in Bandra", 5); len(got) != 1 || got[0].ID != "A3" {
		t.Fatalf("unexpected results %+v", got)
	}
	if got := c.Search("pune", 1); len(got) != 1 {
		t.Fatalf("limit not applied: %+v", got)
	}
	if got := c.Search("   ", 5); got != nil {
		t.Fatalf("blank query should match nothing: %+v", got)
	}
}

func TestNilCatalogIsEmpty(t *testing.T) {
	var c *Catalog
	if c.Len() != 0 || c.Search("pune", 3) != nil {
		t.Fatalf("nil catalog should be empty")
	}
	if _, ok := c.Find("A1"); ok {
		t.Fatalf("nil catalog should find nothing")
	}
}
