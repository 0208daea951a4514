package incidentapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

type fakeColumnar struct {
	writeFailures int
	writeCalls    int
	incidents     map[string]*events.IncidentEnriched
}

func newFakeColumnar() *fakeColumnar {
	return &fakeColumnar{incidents: map[string]*events.IncidentEnriched{}}
}

func (f *fakeColumnar) WriteIncidentCreated(_ context.Context, incident events.IncidentCreated) error {
	f.writeCalls++
	if f.writeCalls <= f.writeFailures {
		return errors.New("write failed")
	}
	f.incidents[incident.IncidentID] = &events.IncidentEnriched{IncidentCreated: incident}
	return nil
}

func (f *fakeColumnar) WriteIncidentEnriched(_ context.Context, incident events.IncidentEnriched) error {
	f.writeCalls++
	if f.writeCalls <= f.writeFailures {
		return errors.New("write failed")
	}
	f.incidents[incident.IncidentID] = &incident
	return nil
}

func (f *fakeColumnar) GetIncident(_ context.Context, incidentID string) (*events.IncidentEnriched, error) {
	if inc, ok := f.incidents[incidentID]; ok {
		return inc, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeColumnar) GetStats(_ context.Context, _ string) (*columnarstore.Stats, error) {
	return &columnarstore.Stats{}, nil
}

func (f *fakeColumnar) GetTrace(_ context.Context, _ string) (*columnarstore.Trace, error) {
	return &columnarstore.Trace{}, nil
}

func (f *fakeColumnar) UpdateStatus(_ context.Context, current events.IncidentStatus, incidentID string, newStatus events.IncidentStatus, _ string) error {
	if !events.ValidTransition(current, newStatus) {
		return errors.New("invalid transition")
	}
	f.incidents[incidentID].Status = newStatus
	return nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ any) error {
	f.published = append(f.published, subject)
	return nil
}

func TestStore_StoreCreated_SucceedsWithoutDLQ(t *testing.T) {
	columnar := newFakeColumnar()
	pub := &fakePublisher{}
	store := New(columnar, pub, logger.Noop())

	err := store.StoreCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-1"})
	require.NoError(t, err)
	assert.Empty(t, pub.published)
}

func TestStore_StoreCreated_RetriesThenSucceeds(t *testing.T) {
	columnar := newFakeColumnar()
	columnar.writeFailures = 2
	pub := &fakePublisher{}
	store := New(columnar, pub, logger.Noop())

	err := store.StoreCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-2"})
	require.NoError(t, err)
	assert.Empty(t, pub.published)
	assert.Equal(t, 3, columnar.writeCalls)
}

func TestStore_StoreCreated_RoutesToDLQAfterExhaustingRetries(t *testing.T) {
	columnar := newFakeColumnar()
	columnar.writeFailures = 99
	pub := &fakePublisher{}
	store := New(columnar, pub, logger.Noop())

	err := store.StoreCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-3"})
	require.Error(t, err)
	assert.Equal(t, []string{"dlq.incident_api"}, pub.published)
}

func TestStore_UpdateStatus_RejectsInvalidTransition(t *testing.T) {
	columnar := newFakeColumnar()
	columnar.incidents["inc-4"] = &events.IncidentEnriched{
		IncidentCreated: events.IncidentCreated{IncidentID: "inc-4", Status: events.StatusResolved},
	}
	store := New(columnar, &fakePublisher{}, logger.Noop())

	err := store.UpdateStatus(context.Background(), "inc-4", events.StatusAck, "retry")
	assert.Error(t, err)
}
