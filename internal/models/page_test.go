package models

import "testing"

func TestPagePathRoundTrip(t *testing.T) {
	p := PagePath("math-notes", 3)
	if p != "math-notes/page-03.json" {
		t.Fatalf("PagePath = %q", p)
	}
	doc, n, ok := ParsePagePath(p)
	if !ok || doc != "math-notes" || n != 3 {
		t.Errorf("ParsePagePath(%q) = %q, %d, %v", p, doc, n, ok)
	}
}

func TestParsePagePath_Rejects(t *testing.T) {
	for _, p := range []string{
		"doc/page-00.json",
		"doc/page-11.json",
		"doc/page-3.json",
		"doc/page-03.md",
		"page-03.json",
		"a/b/page-03.json",
		"bad id/page-01.json",
		"doc/.notecanvas-tmp-1",
	} {
		if _, _, ok := ParsePagePath(p); ok {
			t.Errorf("ParsePagePath(%q) accepted", p)
		}
	}
}

func TestValidDocumentID(t *testing.T) {
	for id, want := range map[string]bool{
		"doc":      true,
		"Doc_1-a":  true,
		"":         false,
		"../etc":   false,
		"a/b":      false,
		"with.dot": false,
	} {
		if got := ValidDocumentID(id); got != want {
			t.Errorf("ValidDocumentID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestExportPathIsNotAPage(t *testing.T) {
	p := ExportPath("doc", 2)
	if p != "doc/exports/page-02.png" {
		t.Fatalf("ExportPath = %q", p)
	}
	if _, _, ok := ParsePagePath(p); ok {
		t.Errorf("ParsePagePath(%q) accepted an export", p)
	}
}
