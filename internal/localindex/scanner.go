package localindex

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"map-manager/internal/assettypes"
	"map-manager/internal/filesystem"
	"map-manager/internal/logging"
	"map-manager/internal/metrics"
	"map-manager/internal/tiles"
	"map-manager/internal/workers"
)

const (
	// EditionDateLayout is the format of installed edition dates.
	EditionDateLayout = "02.01.2006"
	// DisplayDateLayout renders installed dates in descriptions.
	DisplayDateLayout = "Jan 2, 2006"

	// SrtmDescription is the fixed description of contour line indexes.
	SrtmDescription = "Contour lines and hillshade"

	defaultTileCacheSize = 256
	maxDescribeWorkers   = 8
)

// InstalledMaps reports the map indexes registered as installed, keyed by file
// name, with their edition date in EditionDateLayout.
type InstalledMaps interface {
	InstalledIndexes(ctx context.Context) (map[string]string, error)
}

type tileCacheKey struct {
	path    string
	modTime int64
	size    int64
}

// Scanner classifies the contents of a storage root.
type Scanner struct {
	root      string
	installed InstalledMaps
	cache     *lru.Cache[tileCacheKey, tiles.Source]
	workers   int
	retry     filesystem.RetryConfig
	log       logging.Logger
}

// NewScanner creates a scanner for root. installed may be nil, in which case no
// map is reported as loaded.
func NewScanner(root string, installed InstalledMaps) *Scanner {
	s := &Scanner{
		root:      root,
		installed: installed,
		workers:   workers.ForIO(maxDescribeWorkers),
		retry:     filesystem.DefaultRetryConfig(),
		log:       logging.For("localindex"),
	}

	cache, err := lru.New[tileCacheKey, tiles.Source](defaultTileCacheSize)
	if err != nil {
		s.log.Warn("tile metadata cache disabled: %v", err)
	} else {
		s.cache = cache
	}
	return s
}

// SetWorkers overrides the description worker count.
func (s *Scanner) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// Root returns the storage root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan scans every location in the fixed order.
func (s *Scanner) Scan(ctx context.Context) Snapshot {
	start := time.Now()
	installed := s.installedIndexes(ctx)

	var entries []IndexEntry
	for _, loc := range Locations {
		if ctx.Err() != nil {
			break
		}
		entries = append(entries, s.scanLocation(ctx, s.locationPath(loc.Dir), loc.Kind, loc.Backup, installed)...)
	}

	return Snapshot{
		Entries:   entries,
		ScannedAt: start,
		Duration:  time.Since(start),
	}
}

// ScanFullMaps scans only the maps root.
func (s *Scanner) ScanFullMaps(ctx context.Context) []IndexEntry {
	return s.scanLocation(ctx, s.locationPath(assettypes.MapsDir), KindObf, false, s.installedIndexes(ctx))
}

// ScanDir scans a single directory with the rules of kind.
func (s *Scanner) ScanDir(ctx context.Context, dir string, kind Kind, backup bool) []IndexEntry {
	return s.scanLocation(ctx, dir, kind, backup, s.installedIndexes(ctx))
}

func (s *Scanner) locationPath(dir string) string {
	if dir == "" {
		return s.root
	}
	return filepath.Join(s.root, dir)
}

func (s *Scanner) installedIndexes(ctx context.Context) map[string]string {
	if s.installed == nil {
		return nil
	}
	m, err := s.installed.InstalledIndexes(ctx)
	if err != nil {
		s.log.Warn("failed to load installed indexes: %v", err)
		return nil
	}
	return m
}

func (s *Scanner) scanLocation(ctx context.Context, dir string, kind Kind, backup bool, installed map[string]string) []IndexEntry {
	listing, err := filesystem.ReadDirWithRetry(dir, s.retry)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug("skipping unreadable %s location %s: %v", kind, dir, err)
			metrics.ScannerLocationErrors.WithLabelValues(kind.String()).Inc()
		}
		return nil
	}

	var entries []IndexEntry
	switch kind {
	case KindObf:
		entries = s.classifyObf(dir, listing, backup, installed)
	case KindTiles:
		entries = s.classifyTiles(dir, listing)
	case KindSrtm:
		entries = s.classifyFixed(dir, listing, assettypes.CategorySrtm)
	case KindWiki:
		entries = s.classifyFixed(dir, listing, assettypes.CategoryWiki)
	case KindVoice:
		entries = s.classifyVoice(dir, listing)
	}

	return s.describeAll(ctx, entries, installed)
}

func (s *Scanner) classifyObf(dir string, listing []os.DirEntry, backup bool, installed map[string]string) []IndexEntry {
	var out []IndexEntry
	for _, de := range listing {
		if !entryMode(dir, de).IsRegular() {
			continue
		}
		category, ok := assettypes.ClassifyMapFile(de.Name())
		if !ok {
			continue
		}
		e, ok := s.newEntry(dir, de, category, backup)
		if !ok {
			continue
		}
		if _, found := installed[de.Name()]; found && !backup {
			e.Loaded = true
		}
		out = append(out, e)
	}
	return out
}

func (s *Scanner) classifyFixed(dir string, listing []os.DirEntry, category assettypes.Category) []IndexEntry {
	var out []IndexEntry
	for _, de := range listing {
		if !assettypes.IsMapIndex(de.Name()) || !entryMode(dir, de).IsRegular() {
			continue
		}
		if e, ok := s.newEntry(dir, de, category, false); ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *Scanner) classifyTiles(dir string, listing []os.DirEntry) []IndexEntry {
	var out []IndexEntry
	for _, de := range listing {
		mode := entryMode(dir, de)
		switch {
		case mode.IsRegular() && assettypes.IsSQLiteTiles(de.Name()):
			if e, ok := s.newEntry(dir, de, assettypes.CategoryTile, false); ok {
				out = append(out, e)
			}
		case mode.IsDir():
			e, ok := s.newEntry(dir, de, assettypes.CategoryTile, false)
			if !ok {
				continue
			}
			e.Corrupted = !tiles.HasMetaInfo(e.Path)
			out = append(out, e)
		}
	}
	return out
}

// classifyVoice lists TTS packs first, then recorded packs, each in name order.
func (s *Scanner) classifyVoice(dir string, listing []os.DirEntry) []IndexEntry {
	var tts, recorded []IndexEntry
	for _, de := range listing {
		if !entryMode(dir, de).IsDir() {
			continue
		}
		files, err := filesystem.ReadDirWithRetry(filepath.Join(dir, de.Name()), s.retry)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name())
		}
		category, ok := assettypes.VoiceKind(names)
		if !ok {
			continue
		}
		e, ok := s.newEntry(dir, de, category, false)
		if !ok {
			continue
		}
		if category == assettypes.CategoryTTSVoice {
			tts = append(tts, e)
		} else {
			recorded = append(recorded, e)
		}
	}
	return append(tts, recorded...)
}

// entryInfo stats de, following symlinks.
func entryInfo(dir string, de os.DirEntry) (fs.FileInfo, error) {
	if de.Type()&fs.ModeSymlink != 0 {
		return os.Stat(filepath.Join(dir, de.Name()))
	}
	return de.Info()
}

// entryMode is the type of de after following symlinks. Broken links have no
// type bits set.
func entryMode(dir string, de os.DirEntry) fs.FileMode {
	if de.Type()&fs.ModeSymlink == 0 {
		return de.Type()
	}
	info, err := os.Stat(filepath.Join(dir, de.Name()))
	if err != nil {
		return fs.ModeIrregular
	}
	return info.Mode().Type()
}

func (s *Scanner) newEntry(dir string, de os.DirEntry, category assettypes.Category, backup bool) (IndexEntry, bool) {
	info, err := entryInfo(dir, de)
	if err != nil {
		s.log.Debug("omitting %s: %v", de.Name(), err)
		return IndexEntry{}, false
	}

	e := IndexEntry{
		Category:         category,
		OriginalCategory: category,
		Path:             filepath.Join(dir, de.Name()),
		FileName:         de.Name(),
		Name:             assettypes.Basename(category, de.Name()),
		SingleFile:       !info.IsDir(),
		ModTime:          info.ModTime(),
	}
	if e.SingleFile {
		e.SizeKB = (info.Size() + 512) >> 10
	}
	if backup {
		e.Category = assettypes.CategoryBackup
	}
	return e, true
}
