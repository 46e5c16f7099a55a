// Package fingerprint derives daily-rotating, non-reversible visitor identifiers.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Generator derives visitor fingerprints from network/client signals. The
// salt is injected at construction so tests can fix it; it must stay stable
// across restarts or same-day visitors split into new fingerprints.
type Generator struct {
	salt string
	now  func() time.Time
}

// New returns a Generator using the given server-held salt.
func New(salt string) *Generator {
	return &Generator{salt: salt, now: time.Now}
}

// Visitor returns the fingerprint for one visitor of one site on the current
// UTC calendar day. Two events from the same visitor, site, and day hash
// identically; any other combination diverges.
//
// Fields are joined with newlines: header values cannot contain newlines, so
// no two distinct inputs share a preimage.
func (g *Generator) Visitor(ip, userAgent string, siteID uuid.UUID) string {
	day := g.now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(ip + "\n" + userAgent + "\n" + siteID.String() + "\n" + day + "\n" + g.salt))
	return hex.EncodeToString(sum[:])
}
