// Package assettypes defines the categories of locally stored map assets and
// the pure, suffix- and location-based rules used to classify them.
//
// Directory layout relative to the application storage root:
//   - "" (root): vector map indexes (*.obf)
//   - roads/: road-only map indexes (*.obf)
//   - tiles/: raster tile sources (*.sqlitedb files or tile directories)
//   - srtm/: contour line indexes (*.obf)
//   - wiki/: offline wikipedia indexes (*.obf)
//   - voice/: voice guidance packs (directories)
//   - backup/: deactivated map indexes (*.obf)
//
// Suffix precedence: ".srtm.obf" and ".wiki.obf" win over the generic ".obf".
package assettypes
