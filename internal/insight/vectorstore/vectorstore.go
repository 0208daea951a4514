// Package vectorstore wraps a weaviate class holding past incidents for
// the insight enricher's RAG similar-incident search (§4.4). It
// centralizes access via the official v5 SDK rather than hand-built
// GraphQL strings, the way the teacher's weavstore package does.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wm "github.com/weaviate/weaviate/entities/models"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Store is the RAG collaborator used by E2.
type Store struct {
	client    *wv.Client
	className string
	topK      int
	log       logger.Logger

	schemaInit sync.Once
	schemaErr  error
}

// New builds a Store. className is the weaviate class holding resolved
// incidents; topK bounds how many similar incidents a search returns.
func New(client *wv.Client, className string, topK int, log logger.Logger) *Store {
	if topK <= 0 {
		topK = 3
	}
	return &Store{client: client, className: className, topK: topK, log: log}
}

func (s *Store) ensureClass(ctx context.Context) error {
	s.schemaInit.Do(func() {
		existing, err := s.client.Schema().ClassGetter().WithClassName(s.className).Do(ctx)
		if err == nil && existing != nil {
			return
		}
		classDef := &wm.Class{
			Class:      s.className,
			Vectorizer: "none",
			Properties: []*wm.Property{
				{Name: "incidentId", DataType: []string{"text"}},
				{Name: "incidentType", DataType: []string{"text"}},
				{Name: "severity", DataType: []string{"text"}},
				{Name: "resolution", DataType: []string{"text"}},
			},
		}
		if err := s.client.Schema().ClassCreator().WithClass(classDef).Do(ctx); err != nil {
			s.schemaErr = fmt.Errorf("vectorstore: create class %s: %w", s.className, err)
		}
	})
	return s.schemaErr
}

// Upsert indexes a resolved incident so future searches can surface it as
// a similar-incident hit.
func (s *Store) Upsert(ctx context.Context, incidentID, incidentType string, severity events.Severity, resolution string, vector []float32) error {
	if err := s.ensureClass(ctx); err != nil {
		return err
	}
	props := map[string]any{
		"incidentId":   incidentID,
		"incidentType": incidentType,
		"severity":     string(severity),
		"resolution":   resolution,
	}
	creator := s.client.Data().Creator().
		WithClassName(s.className).
		WithID(incidentID).
		WithProperties(props)
	if len(vector) > 0 {
		creator = creator.WithVector(vector)
	}
	if _, err := creator.Do(ctx); err != nil {
		return fmt.Errorf("vectorstore: upsert %s: %w", incidentID, err)
	}
	return nil
}

// Search returns the topK most similar past incidents to vector (§4.4).
func (s *Store) Search(ctx context.Context, vector []float32) ([]events.SimilarIncident, error) {
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}

	fields := []graphql.Field{
		{Name: "incidentId"},
		{Name: "resolution"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(s.topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("vectorstore: search returned errors: %v", resp.Errors)
	}

	return parseSearchResult(resp.Data, s.className), nil
}

func parseSearchResult(data map[string]any, className string) []events.SimilarIncident {
	get, _ := data["Get"].(map[string]any)
	rows, _ := get[className].([]any)

	out := make([]events.SimilarIncident, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		incidentID, _ := row["incidentId"].(string)
		resolution, _ := row["resolution"].(string)
		var certainty float64
		if additional, ok := row["_additional"].(map[string]any); ok {
			if c, ok := additional["certainty"].(float64); ok {
				certainty = c
			}
		}
		out = append(out, events.SimilarIncident{
			IncidentID:      incidentID,
			SimilarityScore: certainty,
			Resolution:      resolution,
		})
	}
	return out
}
