package fingerprint

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

const (
	testIP = "203.0.113.7"
	testUA = "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVisitor_DeterministicWithinDay(t *testing.T) {
	g := New("test-salt")
	g.now = fixedClock(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	siteID := uuid.New()

	first := g.Visitor(testIP, testUA, siteID)

	// Same calendar day, different wall clock.
	g.now = fixedClock(time.Date(2026, 8, 29, 23, 59, 59, 0, time.UTC))
	second := g.Visitor(testIP, testUA, siteID)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestVisitor_RotatesDaily(t *testing.T) {
	g := New("test-salt")
	siteID := uuid.New()

	g.now = fixedClock(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	today := g.Visitor(testIP, testUA, siteID)

	g.now = fixedClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	tomorrow := g.Visitor(testIP, testUA, siteID)

	assert.NotEqual(t, today, tomorrow)
}

func TestVisitor_UsesUTCDay(t *testing.T) {
	g := New("test-salt")
	siteID := uuid.New()

	// 2026-08-30 01:00 in UTC+2 is still 2026-08-29 in UTC.
	zone := time.FixedZone("UTC+2", 2*60*60)
	g.now = fixedClock(time.Date(2026, 8, 30, 1, 0, 0, 0, zone))
	local := g.Visitor(testIP, testUA, siteID)

	g.now = fixedClock(time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC))
	utc := g.Visitor(testIP, testUA, siteID)

	assert.Equal(t, utc, local)
}

func TestVisitor_DivergesPerInput(t *testing.T) {
	g := New("test-salt")
	g.now = fixedClock(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	siteID := uuid.New()

	base := g.Visitor(testIP, testUA, siteID)

	assert.NotEqual(t, base, g.Visitor("203.0.113.8", testUA, siteID), "ip change")
	assert.NotEqual(t, base, g.Visitor(testIP, testUA+" extra", siteID), "user agent change")
	assert.NotEqual(t, base, g.Visitor(testIP, testUA, uuid.New()), "site change")

	other := New("other-salt")
	other.now = g.now
	assert.NotEqual(t, base, other.Visitor(testIP, testUA, siteID), "salt change")
}
