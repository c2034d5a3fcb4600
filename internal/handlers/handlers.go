package handlers

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"map-manager/internal/billing"
	"map-manager/internal/database"
	"map-manager/internal/localindex"
	"map-manager/internal/logging"
)

// previewCacheSize bounds the number of rendered tile previews kept in memory.
const previewCacheSize = 64

// Handlers serves the HTTP API.
type Handlers struct {
	db       *database.Database
	indexer  *localindex.Indexer
	scanner  *localindex.Scanner
	billing  *billing.Helper
	events   *EventHub
	previews *lru.Cache[previewKey, []byte]
	memory   PressureGauge
	log      logging.Logger
}

// PressureGauge reports memory pressure. *memory.Guard implements it.
type PressureGauge interface {
	Pressured() bool
}

// New creates the API handlers. events may be nil when no push stream is served.
func New(db *database.Database, idx *localindex.Indexer, scanner *localindex.Scanner, helper *billing.Helper, events *EventHub) *Handlers {
	previews, err := lru.New[previewKey, []byte](previewCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}

	return &Handlers{
		db:       db,
		indexer:  idx,
		scanner:  scanner,
		billing:  helper,
		events:   events,
		previews: previews,
		log:      logging.For("http"),
	}
}

// SetMemoryGuard makes tile previews refuse to render while g reports pressure.
// Cached previews are still served.
func (h *Handlers) SetMemoryGuard(g PressureGauge) {
	h.memory = g
}
