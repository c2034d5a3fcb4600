package assettypes

import (
	"fmt"
	"strings"
)

// Category is the kind of a locally stored asset.
type Category string

const (
	// CategoryMap is a vector map index.
	CategoryMap Category = "map"
	// CategoryTile is a raster tile source.
	CategoryTile Category = "tile"
	// CategorySrtm is a contour line index.
	CategorySrtm Category = "srtm"
	// CategoryWiki is an offline wikipedia index.
	CategoryWiki Category = "wiki"
	// CategoryTTSVoice is a text-to-speech voice pack.
	CategoryTTSVoice Category = "tts_voice"
	// CategoryRecordedVoice is a recorded voice pack.
	CategoryRecordedVoice Category = "recorded_voice"
	// CategoryBackup is a deactivated asset kept in the backup directory.
	CategoryBackup Category = "backup"
)

// Directory names relative to the storage root.
const (
	MapsDir   = ""
	RoadsDir  = "roads"
	TilesDir  = "tiles"
	SrtmDir   = "srtm"
	WikiDir   = "wiki"
	VoiceDir  = "voice"
	BackupDir = "backup"
)

// File suffixes.
const (
	MapIndexExt  = ".obf"
	SrtmIndexExt = ".srtm.obf"
	WikiIndexExt = ".wiki.obf"
	SQLiteExt    = ".sqlitedb"
	ExtraZipExt  = ".extra.zip"

	// TTSVoiceMarkerSuffix marks a directory as a TTS voice pack.
	TTSVoiceMarkerSuffix = "_tts.js"
	// RecordedVoiceConfig marks a directory as a recorded voice pack.
	RecordedVoiceConfig = "_config.p"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryMap,
	CategoryTile,
	CategorySrtm,
	CategoryWiki,
	CategoryTTSVoice,
	CategoryRecordedVoice,
	CategoryBackup,
}

var humanNames = map[Category]string{
	CategoryMap:           "Standard maps",
	CategoryTile:          "Online and cached tile maps",
	CategorySrtm:          "Contour lines",
	CategoryWiki:          "Wikipedia",
	CategoryTTSVoice:      "Voice prompts (TTS)",
	CategoryRecordedVoice: "Voice prompts (recorded)",
	CategoryBackup:        "Deactivated",
}

// String returns the category identifier.
func (c Category) String() string {
	return string(c)
}

// HumanString returns the display label for the category.
func (c Category) HumanString() string {
	if name, ok := humanNames[c]; ok {
		return name
	}
	return string(c)
}

// ParseCategory converts an identifier back into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := humanNames[c]; !ok {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// IsMapIndex reports whether name carries the binary map index suffix.
func IsMapIndex(name string) bool {
	return strings.HasSuffix(name, MapIndexExt)
}

// IsSQLiteTiles reports whether name is a sqlite tile database.
func IsSQLiteTiles(name string) bool {
	return strings.HasSuffix(name, SQLiteExt)
}

// ClassifyMapFile classifies a file found in a map index location.
// Files without the ".obf" suffix are excluded (ok=false).
func ClassifyMapFile(name string) (c Category, ok bool) {
	if !IsMapIndex(name) {
		return "", false
	}
	switch {
	case strings.HasSuffix(name, SrtmIndexExt):
		return CategorySrtm, true
	case strings.HasSuffix(name, WikiIndexExt):
		return CategoryWiki, true
	default:
		return CategoryMap, true
	}
}

// VoiceKind classifies a voice directory from the names of the files it
// contains. Recorded packs win over TTS packs; anything else is excluded.
func VoiceKind(fileNames []string) (c Category, ok bool) {
	tts := false
	for _, n := range fileNames {
		if n == RecordedVoiceConfig {
			return CategoryRecordedVoice, true
		}
		if strings.HasSuffix(n, TTSVoiceMarkerSuffix) {
			tts = true
		}
	}
	if tts {
		return CategoryTTSVoice, true
	}
	return "", false
}

// Basename returns the display base name of an asset file.
func Basename(c Category, fileName string) string {
	if strings.HasSuffix(fileName, ExtraZipExt) {
		return strings.TrimSuffix(fileName, ExtraZipExt)
	}
	if strings.HasSuffix(fileName, SQLiteExt) {
		return strings.TrimSuffix(fileName, SQLiteExt)
	}
	if c == CategoryRecordedVoice {
		if i := strings.LastIndex(fileName, "_"); i >= 0 {
			return fileName[:i]
		}
		return fileName
	}
	if i := strings.LastIndex(fileName, "_"); i >= 0 {
		return fileName[:i]
	}
	if i := strings.Index(fileName, "."); i > 0 {
		return fileName[:i]
	}
	return fileName
}

// DisplayName formats a file name for listings: everything before the first
// "." with underscores turned into spaces.
func DisplayName(fileName string) string {
	name := fileName
	if i := strings.Index(name, "."); i != -1 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "_", " ")
}
