package localindex

import (
	"time"

	"map-manager/internal/assettypes"
)

// IndexEntry is one locally stored asset as seen by a single scan pass.
type IndexEntry struct {
	Category         assettypes.Category `json:"category"`
	// OriginalCategory differs from Category only for backup entries.
	OriginalCategory assettypes.Category `json:"originalCategory"`
	Path             string              `json:"path"`
	FileName         string              `json:"fileName"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Loaded           bool                `json:"loaded"`
	Corrupted        bool                `json:"corrupted"`
	SingleFile       bool                `json:"singleFile"`
	SizeKB           int64               `json:"sizeKb"`
	ModTime          time.Time           `json:"modTime"`
}

// IsBackup reports whether the entry lives in the backup directory.
func (e IndexEntry) IsBackup() bool {
	return e.Category == assettypes.CategoryBackup
}

// Snapshot is the result of a full scan.
type Snapshot struct {
	Entries   []IndexEntry  `json:"entries"`
	ScannedAt time.Time     `json:"scannedAt"`
	Duration  time.Duration `json:"duration"`
}

// Filter returns the entries of one category, in scan order.
func (s Snapshot) Filter(c assettypes.Category) []IndexEntry {
	var out []IndexEntry
	for _, e := range s.Entries {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

// Counts returns the number of entries per category.
func (s Snapshot) Counts() map[assettypes.Category]int {
	counts := make(map[assettypes.Category]int, len(assettypes.Categories))
	for _, c := range assettypes.Categories {
		counts[c] = 0
	}
	for _, e := range s.Entries {
		counts[e.Category]++
	}
	return counts
}

// Kind selects the classification rules applied to a location.
type Kind int

const (
	KindObf Kind = iota
	KindTiles
	KindSrtm
	KindWiki
	KindVoice
)

func (k Kind) String() string {
	switch k {
	case KindObf:
		return "obf"
	case KindTiles:
		return "tiles"
	case KindSrtm:
		return "srtm"
	case KindWiki:
		return "wiki"
	case KindVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// Location is one directory of the storage root and how to scan it.
type Location struct {
	Dir    string
	Kind   Kind
	Backup bool
}

// Locations is the fixed scan order.
var Locations = []Location{
	{Dir: assettypes.MapsDir, Kind: KindObf},
	{Dir: assettypes.RoadsDir, Kind: KindObf},
	{Dir: assettypes.TilesDir, Kind: KindTiles},
	{Dir: assettypes.SrtmDir, Kind: KindSrtm},
	{Dir: assettypes.WikiDir, Kind: KindWiki},
	{Dir: assettypes.VoiceDir, Kind: KindVoice},
	{Dir: assettypes.BackupDir, Kind: KindObf, Backup: true},
}
