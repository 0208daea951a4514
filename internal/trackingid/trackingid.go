// Package trackingid constructs and validates the end-to-end tracking
// identifier carried on every event (§3, §9: "Correlation across services
// via strings... tracking_id and suppress_key are first-class values with
// constructors").
package trackingid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// syntheticPrefix marks a tracking id minted by the pipeline itself rather
// than supplied upstream, per §3 ("absent tracking ids are synthesized at
// ingress and tagged synthetic=true").
const syntheticPrefix = "synthetic-"

// New returns a fresh, randomly generated tracking id in the canonical
// format: a UUIDv4 string, unprefixed.
func New() string {
	return uuid.NewString()
}

// Synthesize deterministically mints a tracking id for a record that
// arrived without one. Deterministic (not random) so that replays of the
// same malformed record during at-least-once delivery synthesize the same
// id, keeping idempotency checks downstream meaningful.
func Synthesize(shipID, host, service, rawMessage string) string {
	sum := sha256.Sum256([]byte(shipID + "|" + host + "|" + service + "|" + rawMessage))
	return syntheticPrefix + hex.EncodeToString(sum[:])[:24]
}

// IsSynthetic reports whether id was produced by Synthesize rather than
// supplied by an upstream collaborator.
func IsSynthetic(id string) bool {
	return len(id) >= len(syntheticPrefix) && id[:len(syntheticPrefix)] == syntheticPrefix
}

// Validate rejects empty tracking ids; callers should synthesize one
// instead of propagating an empty string (§3 "Must be present on every
// event").
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("tracking id must not be empty")
	}
	return nil
}
