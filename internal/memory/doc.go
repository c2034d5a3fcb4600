// Package memory configures the Go soft memory limit for containers and
// guards memory-heavy work against it.
//
// ConfigureFromEnv runs first in main:
//
//   - GOMEMLIMIT, when set, is left alone and reported
//   - MEMORY_LIMIT (bytes) times MEMORY_RATIO (default 0.85) becomes the limit
//   - otherwise nothing changes
//
// A Guard samples heap allocation every few seconds. When usage reaches the
// critical ratio it reports pressure until usage falls below the recover
// ratio. The tile preview handler uses it to refuse renders, since decoding a
// tile image is the largest allocation the service makes.
package memory
