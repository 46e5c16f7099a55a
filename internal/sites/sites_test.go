package sites

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-analytics/loupe/internal/database"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://WWW.Example.com/", "example.com"},
		{"example.com", "example.com"},
		{"www.example.com/", "example.com"},
		{"www.example.com", "example.com"},
		{"http://example.com/some/path?q=1", "example.com"},
		{"  Example.COM  ", "example.com"},
		{"sub.example.com", "sub.example.com"},
		{"https://www.www.example.com", "example.com"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.input)
		require.NoError(t, err, "Normalize(%q)", tt.input)
		assert.Equal(t, tt.want, got, "Normalize(%q)", tt.input)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"https://WWW.Example.com/", "example.com", "www.example.com/", "sub.domain.example.com"}
	for _, input := range inputs {
		once, err := Normalize(input)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "Normalize should be idempotent for %q", input)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "http://", "https:///nohost", "http://%zz/"} {
		_, err := Normalize(input)
		assert.ErrorIs(t, err, ErrInvalidDomain, "input %q", input)
	}
}

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = originalDB
		_ = db.Close()
	})

	return mock
}

func siteRows(id uuid.UUID, domain string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"site_id", "domain", "owner_id", "created_at"}).
		AddRow(id, domain, "owner_1", time.Now())
}

func TestResolve_SiteIDPrecedence(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()

	// Only the id lookup should run, even with an Origin pointing elsewhere.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT site_id, domain, owner_id, created_at FROM sites WHERE site_id = $1`)).
		WithArgs(siteID).
		WillReturnRows(siteRows(siteID, "example.com"))

	site, err := Resolve(context.Background(), siteID.String(), "https://other-registered.com", "")
	require.NoError(t, err)
	assert.Equal(t, "example.com", site.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_UnknownIDFallsBackToOrigin(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()
	registered := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE site_id = $1`)).
		WithArgs(siteID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE domain = $1`)).
		WithArgs("example.com").
		WillReturnRows(siteRows(registered, "example.com"))

	site, err := Resolve(context.Background(), siteID.String(), "https://www.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, registered, site.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_MissingOrigin(t *testing.T) {
	_, err := Resolve(context.Background(), "", "", "")
	assert.ErrorIs(t, err, ErrMissingOrigin)
}

func TestResolve_InvalidOrigin(t *testing.T) {
	_, err := Resolve(context.Background(), "", "http://%zz/", "")
	assert.ErrorIs(t, err, ErrInvalidOrigin)
}

func TestResolve_RefererFallback(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE domain = $1`)).
		WithArgs("example.com").
		WillReturnRows(siteRows(siteID, "example.com"))

	site, err := Resolve(context.Background(), "", "", "https://example.com/pricing")
	require.NoError(t, err)
	assert.Equal(t, siteID, site.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_NotRegistered(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE domain = $1`)).
		WithArgs("unregistered.com").
		WillReturnError(sql.ErrNoRows)

	_, err := Resolve(context.Background(), "", "https://www.unregistered.com", "")

	var nr *NotRegisteredError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, "unregistered.com", nr.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NormalizesDomain(t *testing.T) {
	mock := withMockDB(t)
	siteID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO sites (domain, owner_id) VALUES ($1, $2)`)).
		WithArgs("example.com", "owner_1").
		WillReturnRows(siteRows(siteID, "example.com"))

	site, err := Create(context.Background(), "owner_1", "https://WWW.Example.com/")
	require.NoError(t, err)
	assert.Equal(t, "example.com", site.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFound(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sites WHERE domain = $1`)).
		WithArgs("gone.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := Delete(context.Background(), "gone.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
