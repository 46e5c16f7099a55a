package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-analytics/loupe/internal/database"
)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = db.Close()
	})

	return mock
}

func strPtr(s string) *string { return &s }

func TestInsert_Pageview(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO events`).
		WithArgs(
			siteID, KindPageview, "abc123", "/pricing", "example.com",
			strPtr("https://ref.example"), strPtr("DE"),
			"Firefox", "Linux", "desktop",
			nil, nil, nil, nil, nil,
			nil, nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	createdAt, err := Insert(context.Background(), &Event{
		SiteID:      siteID,
		Kind:        KindPageview,
		VisitorHash: "abc123",
		Pathname:    "/pricing",
		Hostname:    "example.com",
		Referrer:    strPtr("https://ref.example"),
		Country:     strPtr("DE"),
		Browser:     "Firefox",
		OS:          "Linux",
		Device:      "desktop",
	})
	require.NoError(t, err)
	assert.Equal(t, now, createdAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_CustomEventEncodesProperties(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO events`).
		WithArgs(
			siteID, KindCustom, "abc123", "/signup", "example.com",
			nil, nil,
			"Chrome", "macOS", "desktop",
			nil, nil, nil, nil, nil,
			strPtr("signup"), []byte(`{"plan":"pro"}`),
		).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	_, err := Insert(context.Background(), &Event{
		SiteID:      siteID,
		Kind:        KindCustom,
		VisitorHash: "abc123",
		Pathname:    "/signup",
		Hostname:    "example.com",
		Browser:     "Chrome",
		OS:          "macOS",
		Device:      "desktop",
		EventName:   strPtr("signup"),
		Properties:  map[string]any{"plan": "pro"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DatabaseError(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(`INSERT INTO events`).WillReturnError(sql.ErrConnDone)

	_, err := Insert(context.Background(), &Event{
		SiteID:      uuid.New(),
		Kind:        KindPageview,
		VisitorHash: "abc123",
		Pathname:    "/",
		Hostname:    "example.com",
		Browser:     "Unknown",
		OS:          "Unknown",
		Device:      "desktop",
	})
	assert.ErrorContains(t, err, "failed to insert event")
}
