package localindex

import (
	"context"
	"fmt"
	"time"

	"map-manager/internal/assettypes"
	"map-manager/internal/metrics"
	"map-manager/internal/tiles"
	"map-manager/internal/workers"
)

func (s *Scanner) describeAll(ctx context.Context, entries []IndexEntry, installed map[string]string) []IndexEntry {
	if len(entries) == 0 {
		return entries
	}

	described, err := workers.Map(ctx, s.workers, entries, func(_ context.Context, e IndexEntry) (IndexEntry, error) {
		e.Description = s.describe(e, installed)
		return e, nil
	})
	if err != nil {
		// Only cancellation reaches here; the scan result is discarded by the caller.
		s.log.Debug("description pass interrupted: %v", err)
		return entries
	}
	return described
}

// describe builds the human description of e. Backup entries always use the
// installed date regardless of their original category.
func (s *Scanner) describe(e IndexEntry, installed map[string]string) string {
	switch e.Category {
	case assettypes.CategoryMap:
		if edition, ok := installed[e.FileName]; ok {
			t, err := time.Parse(EditionDateLayout, edition)
			if err != nil {
				s.log.Debug("unparseable edition date %q for %s", edition, e.FileName)
				return ""
			}
			return formatDate(t)
		}
		return formatDate(e.ModTime)
	case assettypes.CategoryTile:
		if e.Corrupted {
			return ""
		}
		src, ok := s.tileSource(e)
		if !ok {
			return ""
		}
		return tileDescription(src)
	case assettypes.CategorySrtm:
		return SrtmDescription
	default:
		return formatDate(e.ModTime)
	}
}

func tileDescription(src tiles.Source) string {
	descr := fmt.Sprintf("Tile source: %s", src.Name)
	if src.HasExpiration() {
		descr += fmt.Sprintf("\nExpires after %d minutes", src.ExpirationMinutes)
	}
	return descr
}

func formatDate(t time.Time) string {
	return t.Format(DisplayDateLayout)
}

func (s *Scanner) tileSource(e IndexEntry) (tiles.Source, bool) {
	key := tileCacheKey{path: e.Path, modTime: e.ModTime.UnixNano()}
	if e.SingleFile {
		key.size = e.SizeKB
	}

	if s.cache != nil {
		if src, ok := s.cache.Get(key); ok {
			metrics.ScannerTileCacheHits.Inc()
			return src, true
		}
		metrics.ScannerTileCacheMisses.Inc()
	}

	var (
		src tiles.Source
		err error
	)
	if e.SingleFile {
		src, err = tiles.ReadSQLiteSource(e.Path)
	} else {
		src, err = tiles.ReadDirSource(e.Path)
	}
	if err != nil {
		s.log.Debug("failed to read tile source %s: %v", e.Path, err)
		return tiles.Source{}, false
	}

	if s.cache != nil {
		s.cache.Add(key, src)
	}
	return src, true
}

// PurgeCache drops cached tile metadata.
func (s *Scanner) PurgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
