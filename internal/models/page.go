// Package models defines the domain types for notecanvas.
package models

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxPages is the page ceiling of a document.
const MaxPages = 10

var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// PageMetadata is a lightweight representation returned by list operations.
type PageMetadata struct {
	Path       string    `json:"path"`
	DocumentID string    `json:"document_id"`
	Number     int       `json:"number"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	Strokes    int       `json:"strokes"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Document summarizes the stored pages of one document.
type Document struct {
	ID        string    `json:"id"`
	Pages     int       `json:"pages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is a page whose recognized text matched a query.
type SearchHit struct {
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	Snippet    string `json:"snippet"`
}

// ValidDocumentID reports whether id is usable as a document directory name.
func ValidDocumentID(id string) bool {
	return documentIDPattern.MatchString(id)
}

// ValidPage reports whether n is within [1, MaxPages].
func ValidPage(n int) bool {
	return n >= 1 && n <= MaxPages
}

// PagePath returns the storage path of a page: "<doc>/page-NN.json".
func PagePath(documentID string, n int) string {
	return fmt.Sprintf("%s/page-%02d.json", documentID, n)
}

// ExportPath returns the storage path of a page's rendered PNG. It lives in
// a subdirectory so ParsePagePath never mistakes it for a page.
func ExportPath(documentID string, n int) string {
	return fmt.Sprintf("%s/exports/page-%02d.png", documentID, n)
}

// ParsePagePath is the inverse of PagePath. ok is false for any other file.
func ParsePagePath(p string) (documentID string, n int, ok bool) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if !ValidDocumentID(dir) {
		return "", 0, false
	}
	num, found := strings.CutPrefix(file, "page-")
	if !found {
		return "", 0, false
	}
	num, found = strings.CutSuffix(num, ".json")
	if !found || len(num) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || !ValidPage(n) {
		return "", 0, false
	}
	return dir, n, true
}
