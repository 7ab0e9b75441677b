package index

// PageIndex defines the interface for page indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type PageIndex interface {
	UpsertPage(p PageRow) error
	DeletePage(path string) error
	GetChecksum(path string) (string, error)
	GetPage(documentID string, number int) (*PageRow, error)
	ListPages(documentID string) ([]PageRow, error)
	Documents() ([]DocumentRow, error)
	SetText(documentID string, number int, text string) error
	GetText(documentID string, number int) (string, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
