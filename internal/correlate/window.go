package correlate

import (
	"time"

	"github.com/platformbuilds/fleetops-core/internal/events"
)

// correlationWindow is a tumbling window of AnomalyEnriched members
// collected for one (ship_id, domain) pair (§4.3). It is not reset on
// every member — it tumbles: once it fires or expires, a fresh window
// starts from empty.
type correlationWindow struct {
	ShipID    string
	Domain    string
	Opened    time.Time
	ExpiresAt time.Time
	Members   []events.AnomalyEnriched
	Fired     bool
}

func newWindow(shipID, domain string, duration time.Duration) *correlationWindow {
	now := time.Now()
	return &correlationWindow{
		ShipID:    shipID,
		Domain:    domain,
		Opened:    now,
		ExpiresAt: now.Add(duration),
	}
}

func (w *correlationWindow) add(a events.AnomalyEnriched) {
	w.Members = append(w.Members, a)
}

func (w *correlationWindow) expired(now time.Time) bool {
	return now.After(w.ExpiresAt)
}

// severity returns the max severity across all current members (§4.3).
func (w *correlationWindow) severity() events.Severity {
	sev := events.SeverityLow
	for _, m := range w.Members {
		sev = events.MaxSeverity(sev, m.Severity)
	}
	return sev
}

// incidentType names the incident by its dominant anomaly type — the most
// frequent AnomalyType among current members, ties broken by first
// occurrence (§3).
func (w *correlationWindow) incidentType() string {
	counts := make(map[string]int)
	order := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		if counts[m.AnomalyType] == 0 {
			order = append(order, m.AnomalyType)
		}
		counts[m.AnomalyType]++
	}
	best := ""
	bestCount := 0
	for _, t := range order {
		if counts[t] > bestCount {
			best = t
			bestCount = counts[t]
		}
	}
	return best
}

// dominantService names the most frequent Service among current members,
// ties broken by first occurrence — the same pattern as incidentType,
// used as one leg of the fingerprint's descriptive tuple (§4.3).
func (w *correlationWindow) dominantService() string {
	counts := make(map[string]int)
	order := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		if counts[m.Service] == 0 {
			order = append(order, m.Service)
		}
		counts[m.Service]++
	}
	best := ""
	bestCount := 0
	for _, s := range order {
		if counts[s] > bestCount {
			best = s
			bestCount = counts[s]
		}
	}
	return best
}

// dominantDeviceID names the most frequent non-nil DeviceID among current
// members, ties broken by first occurrence; "" if no member names a
// device (§4.3).
func (w *correlationWindow) dominantDeviceID() string {
	counts := make(map[string]int)
	order := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		if m.DeviceID == nil {
			continue
		}
		if counts[*m.DeviceID] == 0 {
			order = append(order, *m.DeviceID)
		}
		counts[*m.DeviceID]++
	}
	best := ""
	bestCount := 0
	for _, d := range order {
		if counts[d] > bestCount {
			best = d
			bestCount = counts[d]
		}
	}
	return best
}

func (w *correlationWindow) memberIDs() []string {
	ids := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		ids = append(ids, m.TrackingID)
	}
	return ids
}

func (w *correlationWindow) evidenceRefs() []string {
	refs := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		if m.EvidenceRef != "" {
			refs = append(refs, m.EvidenceRef)
		}
	}
	return refs
}

func (w *correlationWindow) scope() []events.IncidentScopeEntry {
	seen := make(map[string]bool)
	var scope []events.IncidentScopeEntry
	for _, m := range w.Members {
		key := m.Service
		if m.DeviceID != nil {
			key += "|" + *m.DeviceID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		scope = append(scope, events.IncidentScopeEntry{DeviceID: m.DeviceID, Service: m.Service})
	}
	return scope
}

func (w *correlationWindow) timeline() []events.TimelineEntry {
	tl := make([]events.TimelineEntry, 0, len(w.Members))
	for _, m := range w.Members {
		tl = append(tl, events.TimelineEntry{
			TS:          m.TS,
			Event:       m.AnomalyType,
			Source:      m.Detector,
			Description: "anomaly " + m.TrackingID + " on " + m.Service,
		})
	}
	return tl
}
