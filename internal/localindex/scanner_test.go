package localindex

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"map-manager/internal/assettypes"
	"map-manager/internal/tiles"
)

type fakeInstalled struct {
	indexes map[string]string
	err     error
	calls   int
}

func (f *fakeInstalled) InstalledIndexes(context.Context) (map[string]string, error) {
	f.calls++
	return f.indexes, f.err
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func names(entries []IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.FileName
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanDirClassifiesBySuffix(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "c.wiki.obf"))
	touch(t, filepath.Join(root, "a.obf"))
	touch(t, filepath.Join(root, "b.srtm.obf"))
	touch(t, filepath.Join(root, "notes.txt"))
	mkdir(t, filepath.Join(root, "dir.obf"))

	s := NewScanner(root, nil)
	got := s.ScanDir(context.Background(), root, KindObf, false)

	want := []struct {
		name     string
		category assettypes.Category
	}{
		{"a.obf", assettypes.CategoryMap},
		{"b.srtm.obf", assettypes.CategorySrtm},
		{"c.wiki.obf", assettypes.CategoryWiki},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %d", len(got), names(got), len(want))
	}
	for i, w := range want {
		if got[i].FileName != w.name || got[i].Category != w.category {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, got[i].FileName, got[i].Category, w.name, w.category)
		}
		if !got[i].SingleFile {
			t.Errorf("entry %d SingleFile = false", i)
		}
		if got[i].SizeKB != 0 {
			t.Errorf("entry %d SizeKB = %d, want 0 for 4 bytes", i, got[i].SizeKB)
		}
	}
	if got[1].Description != SrtmDescription {
		t.Errorf("srtm description = %q", got[1].Description)
	}
}

func TestScanDirFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "Germany_europe.obf")
	if err := os.WriteFile(target, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "Germany_europe.obf")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "missing.obf"), filepath.Join(root, "broken.obf")); err != nil {
		t.Fatal(err)
	}

	got := NewScanner(root, nil).ScanDir(context.Background(), root, KindObf, false)
	if len(got) != 1 || got[0].FileName != "Germany_europe.obf" {
		t.Fatalf("ScanDir() = %v, want the linked map only", names(got))
	}
	if !got[0].SingleFile || got[0].SizeKB != 2 {
		t.Errorf("SingleFile = %v, SizeKB = %d, want target file of 2 KB", got[0].SingleFile, got[0].SizeKB)
	}
}

func TestScanDirMissingOrUnreadable(t *testing.T) {
	s := NewScanner(t.TempDir(), nil)

	if got := s.ScanDir(context.Background(), filepath.Join(s.Root(), "nope"), KindObf, false); len(got) != 0 {
		t.Errorf("missing dir yielded %v", names(got))
	}

	file := filepath.Join(s.Root(), "file.obf")
	touch(t, file)
	if got := s.ScanDir(context.Background(), file, KindTiles, false); len(got) != 0 {
		t.Errorf("file as dir yielded %v", names(got))
	}
}

func TestScanLoadedAndBackup(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Germany_europe.obf"))
	touch(t, filepath.Join(root, "France_europe.obf"))
	touch(t, filepath.Join(root, assettypes.BackupDir, "Germany_europe.obf"))
	touch(t, filepath.Join(root, assettypes.BackupDir, "Alps.srtm.obf"))

	installed := &fakeInstalled{indexes: map[string]string{"Germany_europe.obf": "05.03.2024"}}
	snap := NewScanner(root, installed).Scan(context.Background())

	if installed.calls != 1 {
		t.Errorf("installed indexes loaded %d times, want 1", installed.calls)
	}

	maps := snap.Filter(assettypes.CategoryMap)
	if !equalStrings(names(maps), []string{"France_europe.obf", "Germany_europe.obf"}) {
		t.Fatalf("maps = %v", names(maps))
	}
	if maps[0].Loaded {
		t.Error("France should not be loaded")
	}
	if !maps[1].Loaded {
		t.Error("Germany should be loaded")
	}
	if maps[1].Description != "Mar 5, 2024" {
		t.Errorf("edition description = %q, want Mar 5, 2024", maps[1].Description)
	}
	if maps[1].Name != "Germany" {
		t.Errorf("Name = %q, want Germany", maps[1].Name)
	}

	backups := snap.Filter(assettypes.CategoryBackup)
	if !equalStrings(names(backups), []string{"Alps.srtm.obf", "Germany_europe.obf"}) {
		t.Fatalf("backups = %v", names(backups))
	}
	for _, b := range backups {
		if b.Loaded {
			t.Errorf("backup %s marked loaded", b.FileName)
		}
		if !b.IsBackup() {
			t.Errorf("backup %s IsBackup() = false", b.FileName)
		}
		if b.Description != b.ModTime.Format(DisplayDateLayout) {
			t.Errorf("backup %s description = %q", b.FileName, b.Description)
		}
	}
	if backups[0].OriginalCategory != assettypes.CategorySrtm {
		t.Errorf("Alps original category = %s, want srtm", backups[0].OriginalCategory)
	}
	if backups[1].OriginalCategory != assettypes.CategoryMap {
		t.Errorf("Germany original category = %s, want map", backups[1].OriginalCategory)
	}
}

func TestScanUnparseableEditionDate(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.obf"))
	installed := &fakeInstalled{indexes: map[string]string{"a.obf": "not a date"}}

	got := NewScanner(root, installed).ScanFullMaps(context.Background())
	if len(got) != 1 || got[0].Description != "" || !got[0].Loaded {
		t.Errorf("ScanFullMaps() = %+v", got)
	}
}

func TestScanInstalledErrorIsIgnored(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.obf"))
	installed := &fakeInstalled{err: errors.New("db closed")}

	got := NewScanner(root, installed).ScanFullMaps(context.Background())
	if len(got) != 1 || got[0].Loaded {
		t.Errorf("ScanFullMaps() = %+v", got)
	}
}

func TestScanTiles(t *testing.T) {
	root := t.TempDir()
	tilesDir := filepath.Join(root, assettypes.TilesDir)

	mkdir(t, filepath.Join(tilesDir, "Broken"))
	touch(t, filepath.Join(tilesDir, "Mapnik", tiles.MetaInfoFile))
	if err := os.WriteFile(filepath.Join(tilesDir, "Mapnik", tiles.MetaInfoFile),
		[]byte("[expiration_time_minutes]\n45\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(tilesDir, "readme.txt"))

	dbPath := filepath.Join(tilesDir, "Hike.sqlitedb")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE info (minzoom TEXT, maxzoom TEXT)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s := NewScanner(root, nil)
	got := s.ScanDir(context.Background(), tilesDir, KindTiles, false)
	if !equalStrings(names(got), []string{"Broken", "Hike.sqlitedb", "Mapnik"}) {
		t.Fatalf("tiles = %v", names(got))
	}

	if !got[0].Corrupted || got[0].Description != "" {
		t.Errorf("Broken = %+v, want corrupted without description", got[0])
	}
	if got[1].Corrupted || got[1].Description != "Tile source: Hike" || got[1].Name != "Hike" {
		t.Errorf("Hike = %+v", got[1])
	}
	if got[2].Corrupted || got[2].Description != "Tile source: Mapnik\nExpires after 45 minutes" {
		t.Errorf("Mapnik = %+v", got[2])
	}

	// Second pass is served from the metadata cache.
	if s.cache.Len() != 2 {
		t.Errorf("cache len = %d, want 2", s.cache.Len())
	}
	again := s.ScanDir(context.Background(), tilesDir, KindTiles, false)
	if again[2].Description != got[2].Description {
		t.Errorf("cached description = %q", again[2].Description)
	}
}

func TestScanVoiceOrder(t *testing.T) {
	root := t.TempDir()
	voice := filepath.Join(root, assettypes.VoiceDir)

	touch(t, filepath.Join(voice, "a-recorded", assettypes.RecordedVoiceConfig))
	touch(t, filepath.Join(voice, "b-tts", "en_tts.js"))
	touch(t, filepath.Join(voice, "c-recorded", assettypes.RecordedVoiceConfig))
	touch(t, filepath.Join(voice, "d-tts", "de_tts.js"))
	touch(t, filepath.Join(voice, "e-both", "x_tts.js"))
	touch(t, filepath.Join(voice, "e-both", assettypes.RecordedVoiceConfig))
	mkdir(t, filepath.Join(voice, "f-empty"))
	touch(t, filepath.Join(voice, "loose_tts.js"))

	got := NewScanner(root, nil).ScanDir(context.Background(), voice, KindVoice, false)

	want := []string{"b-tts", "d-tts", "a-recorded", "c-recorded", "e-both"}
	if !equalStrings(names(got), want) {
		t.Fatalf("voice order = %v, want %v", names(got), want)
	}
	if got[0].Category != assettypes.CategoryTTSVoice || got[2].Category != assettypes.CategoryRecordedVoice {
		t.Errorf("categories = %s, %s", got[0].Category, got[2].Category)
	}
	if got[4].Category != assettypes.CategoryRecordedVoice {
		t.Errorf("e-both category = %s, want recorded", got[4].Category)
	}
	if got[0].SingleFile {
		t.Error("voice pack reported as single file")
	}
}

func TestScanFixedOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, assettypes.BackupDir, "a.obf"))
	touch(t, filepath.Join(root, assettypes.VoiceDir, "en", "en_tts.js"))
	touch(t, filepath.Join(root, assettypes.WikiDir, "w.obf"))
	touch(t, filepath.Join(root, assettypes.SrtmDir, "s.obf"))
	touch(t, filepath.Join(root, assettypes.TilesDir, "t.sqlitedb"))
	touch(t, filepath.Join(root, assettypes.RoadsDir, "r.obf"))
	touch(t, filepath.Join(root, "z.obf"))

	snap := NewScanner(root, nil).Scan(context.Background())

	want := []assettypes.Category{
		assettypes.CategoryMap,
		assettypes.CategoryMap,
		assettypes.CategoryTile,
		assettypes.CategorySrtm,
		assettypes.CategoryWiki,
		assettypes.CategoryTTSVoice,
		assettypes.CategoryBackup,
	}
	if len(snap.Entries) != len(want) {
		t.Fatalf("got %d entries %v", len(snap.Entries), names(snap.Entries))
	}
	for i, c := range want {
		if snap.Entries[i].Category != c {
			t.Errorf("entry %d (%s) category = %s, want %s", i, snap.Entries[i].FileName, snap.Entries[i].Category, c)
		}
	}
	if snap.Entries[0].FileName != "z.obf" || snap.Entries[1].FileName != "r.obf" {
		t.Errorf("maps root must precede roads: %v", names(snap.Entries[:2]))
	}
	if snap.Entries[4].Category != assettypes.CategoryWiki {
		t.Errorf("wiki dir entry category = %s", snap.Entries[4].Category)
	}

	counts := snap.Counts()
	if counts[assettypes.CategoryMap] != 2 || counts[assettypes.CategoryRecordedVoice] != 0 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestScanDeterministic(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"b.obf", "a.obf", "c.srtm.obf", "d.wiki.obf"} {
		touch(t, filepath.Join(root, n))
	}
	s := NewScanner(root, nil)
	s.SetWorkers(3)

	first := names(s.ScanFullMaps(context.Background()))
	for i := 0; i < 5; i++ {
		if got := names(s.ScanFullMaps(context.Background())); !equalStrings(got, first) {
			t.Fatalf("pass %d = %v, want %v", i, got, first)
		}
	}
}

func TestDescribeDates(t *testing.T) {
	s := NewScanner(t.TempDir(), nil)
	mod := time.Date(2023, time.November, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry IndexEntry
		want  string
	}{
		{"map uses mod time", IndexEntry{Category: assettypes.CategoryMap, ModTime: mod}, "Nov 9, 2023"},
		{"wiki uses mod time", IndexEntry{Category: assettypes.CategoryWiki, ModTime: mod}, "Nov 9, 2023"},
		{"tts uses mod time", IndexEntry{Category: assettypes.CategoryTTSVoice, ModTime: mod}, "Nov 9, 2023"},
		{"recorded uses mod time", IndexEntry{Category: assettypes.CategoryRecordedVoice, ModTime: mod}, "Nov 9, 2023"},
		{"srtm is fixed", IndexEntry{Category: assettypes.CategorySrtm, ModTime: mod}, SrtmDescription},
		{"backup srtm uses mod time", IndexEntry{Category: assettypes.CategoryBackup, OriginalCategory: assettypes.CategorySrtm, ModTime: mod}, "Nov 9, 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.describe(tt.entry, nil); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTileDescription(t *testing.T) {
	if got := tileDescription(tiles.Source{Name: "OSM", ExpirationMinutes: -1}); got != "Tile source: OSM" {
		t.Errorf("no expiry = %q", got)
	}
	if got := tileDescription(tiles.Source{Name: "OSM", ExpirationMinutes: 0}); got != "Tile source: OSM\nExpires after 0 minutes" {
		t.Errorf("zero expiry = %q", got)
	}
}
