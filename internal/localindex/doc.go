/*
Package localindex scans the application storage directory and produces
snapshots of locally installed assets.

# Locations

Locations are scanned in a fixed order: the maps root, roads/, tiles/, srtm/,
wiki/, voice/ and backup/. Within a location entries are sorted by file name.
Voice packs are the exception: every TTS pack is listed before any recorded pack.

A location that does not exist or cannot be read contributes nothing. Entries
whose metadata cannot be read are omitted or, for tile sources, listed without
a description.

# Descriptions

Descriptions are computed by a bounded worker pool after the directory listing
is classified. Tile source metadata is cached by path, modification time and
size so unchanged sources are not reopened on every rescan.

# Background indexing

Indexer keeps the latest Snapshot, rescans on an interval and when the storage
directories change (fsnotify), and skips a scan request while one is running.
*/
package localindex
