// Package middleware provides HTTP middleware for the map manager API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - gzip response compression
//   - Session authentication for /api routes
package middleware
