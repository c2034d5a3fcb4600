// Package tiles reads raster tile source metadata and renders tile previews.
//
// Two storage layouts are supported: a directory source, which carries a
// ".metainfo" file (or the legacy "url" file) next to its zoom directories,
// and a single ".sqlitedb" database with "info" and "tiles" tables.
package tiles
