package correlate

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprint deterministically hashes the §4.3 descriptive tuple
// (ship_id, domain, service, anomaly_type, device_id, severity_bucket) so
// two incidents describing the same recurring problem collide on the same
// suppress key even when they're built from a disjoint batch of member
// anomalies — dedup keys on what the incident IS, not which anomaly
// tracking IDs happened to trigger it.
func fingerprint(shipID, domain, service, anomalyType, deviceID, severityBucket string) string {
	h := sha256.New()
	h.Write([]byte(shipID))
	h.Write([]byte{'|'})
	h.Write([]byte(domain))
	h.Write([]byte{'|'})
	h.Write([]byte(service))
	h.Write([]byte{'|'})
	h.Write([]byte(anomalyType))
	h.Write([]byte{'|'})
	h.Write([]byte(deviceID))
	h.Write([]byte{'|'})
	h.Write([]byte(severityBucket))
	return hex.EncodeToString(h.Sum(nil))
}

// stripe maps (ship_id, domain) onto one of K lock stripes so concurrent
// correlation of unrelated ships/domains doesn't serialize on one mutex
// (§4.3).
func stripe(shipID, domain string, k int) int {
	h := sha256.Sum256([]byte(shipID + "|" + domain))
	var acc uint64
	for _, b := range h[:8] {
		acc = acc<<8 | uint64(b)
	}
	return int(acc % uint64(k))
}
