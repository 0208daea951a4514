package incidentapi

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	lucene "github.com/grindlemire/go-lucene"

	"github.com/platformbuilds/fleetops-core/internal/events"
)

// searchDoc is the flattened shape indexed for full-text incident search
// (§9 supplemented search endpoint, not named by the original spec).
type searchDoc struct {
	IncidentID   string `json:"incident_id"`
	ShipID       string `json:"ship_id"`
	IncidentType string `json:"incident_type"`
	Severity     string `json:"severity"`
	Status       string `json:"status"`
	RootCause    string `json:"root_cause"`
}

// SearchIndex is an in-memory bleve index over incidents, kept current by
// the same handler path that persists IncidentEnriched to the columnar
// store. It exists purely to serve free-text/Lucene incident search; the
// columnar store remains the system of record.
type SearchIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewSearchIndex builds an empty in-memory index.
func NewSearchIndex() (*SearchIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("incidentapi: build search index: %w", err)
	}
	return &SearchIndex{index: idx}, nil
}

// Index upserts an incident's searchable fields.
func (s *SearchIndex) Index(incident events.IncidentEnriched) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := searchDoc{
		IncidentID:   incident.IncidentID,
		ShipID:       incident.ShipID,
		IncidentType: incident.IncidentType,
		Severity:     string(incident.Severity),
		Status:       string(incident.Status),
		RootCause:    incident.AI.RootCause,
	}
	return s.index.Index(incident.IncidentID, doc)
}

// ValidateLucene rejects a query that isn't parseable Lucene syntax
// before it's handed to the search index, the way the teacher's
// QueryValidator screens LogsQL/Lucene input.
func ValidateLucene(query string) error {
	if query == "" {
		return nil
	}
	if _, err := lucene.Parse(query); err != nil {
		return fmt.Errorf("invalid search query syntax: %w", err)
	}
	return nil
}

// Search runs a free-text query over indexed incidents and returns the
// matching incident IDs in relevance order, capped at limit.
func (s *SearchIndex) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("incidentapi: search: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
