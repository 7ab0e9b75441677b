package index

import (
	"log/slog"

	"github.com/starford/notecanvas/internal/checksum"
	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/storage"
	"github.com/starford/notecanvas/internal/surface"
)

// Sync walks the data directory and brings the index up to date:
//   - new/changed page files are summarized and upserted
//   - page files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, logger); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePage(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile summarizes page content and upserts it into the DB. Unreadable
// snapshots are indexed with zero strokes so the page still counts.
// Paths that are not page files are ignored.
func IndexFile(db *DB, path string, data []byte, logger *slog.Logger) error {
	doc, n, ok := models.ParsePagePath(path)
	if !ok {
		return nil
	}
	var strokes int
	if sum, err := surface.Summarize(data); err == nil {
		strokes = sum.Strokes
	} else if logger != nil {
		logger.Debug("index: unreadable snapshot", slog.String("path", path), slog.String("error", err.Error()))
	}
	return db.UpsertPage(PageRow{
		Path:       path,
		DocumentID: doc,
		Number:     n,
		Checksum:   checksum.Sum(data),
		Size:       int64(len(data)),
		Strokes:    strokes,
	})
}
