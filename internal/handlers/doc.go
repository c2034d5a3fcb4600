// Package handlers provides HTTP request handlers for the map manager API.
//
// It includes handlers for:
//   - Local index listing, rescans and installed edition bookkeeping
//   - Tile source previews
//   - Purchase and inventory tasks, plus a websocket stream of their events
//   - API password sessions
//   - Health checks and build information
package handlers
