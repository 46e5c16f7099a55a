// Package sites manages registered sites and canonical domain resolution.
package sites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loupe-analytics/loupe/internal/database"
)

var (
	// ErrInvalidDomain is returned when a raw domain or origin cannot be
	// normalized into a canonical hostname.
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrNotFound is returned when no site matches the lookup key.
	ErrNotFound = errors.New("site not found")

	// ErrMissingOrigin is returned when a request carries no usable site id
	// and no Origin or Referer header.
	ErrMissingOrigin = errors.New("missing origin")

	// ErrInvalidOrigin is returned when the Origin header cannot be parsed.
	ErrInvalidOrigin = errors.New("invalid origin")
)

// NotRegisteredError reports a resolved domain that matches no registered
// site. It carries the normalized domain so callers can surface it.
type NotRegisteredError struct {
	Domain string
}

func (e *NotRegisteredError) Error() string {
	return "site not registered: " + e.Domain
}

// Site is a registered tracked property. The canonical domain is unique
// across all sites.
type Site struct {
	ID        uuid.UUID `json:"id"`
	Domain    string    `json:"domain"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize converts a raw hostname, URL, or Origin header value into the
// canonical domain used as the site lookup key: lowercase, no scheme, no
// leading "www.", no trailing slash.
//
// The same function is applied when registering a site and when resolving an
// inbound Origin header; diverging the two would make lookups silently fail.
func Normalize(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	if domain == "" {
		return "", ErrInvalidDomain
	}

	if strings.Contains(domain, "://") || strings.Contains(domain, "/") {
		target := domain
		if !strings.Contains(target, "://") {
			target = "https://" + target
		}
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return "", ErrInvalidDomain
		}
		domain = u.Hostname()
	}

	// Strip repeated prefixes so normalization stays idempotent.
	for strings.HasPrefix(domain, "www.") {
		domain = strings.TrimPrefix(domain, "www.")
	}
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" {
		return "", ErrInvalidDomain
	}

	return domain, nil
}

// Resolve finds the site for an inbound event. Precedence: an explicit site
// id in the payload wins; otherwise the Origin header (falling back to
// Referer) is normalized and looked up by canonical domain.
func Resolve(ctx context.Context, siteID, origin, referer string) (*Site, error) {
	if siteID != "" {
		if id, err := uuid.Parse(siteID); err == nil {
			site, err := GetByID(ctx, id)
			if err == nil {
				return site, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			// Unknown id falls through to header-based resolution.
		}
	}

	header := origin
	if header == "" {
		header = referer
	}
	if header == "" {
		return nil, ErrMissingOrigin
	}

	domain, err := Normalize(header)
	if err != nil {
		return nil, ErrInvalidOrigin
	}

	site, err := GetByDomain(ctx, domain)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotRegisteredError{Domain: domain}
	}
	return site, err
}

// GetByID looks up a site by primary key.
func GetByID(ctx context.Context, id uuid.UUID) (*Site, error) {
	return scanSite(database.DB.QueryRowContext(ctx,
		`SELECT site_id, domain, owner_id, created_at FROM sites WHERE site_id = $1`, id))
}

// GetByDomain looks up a site by canonical domain. The input is normalized
// first so callers may pass raw user input.
func GetByDomain(ctx context.Context, rawDomain string) (*Site, error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return nil, err
	}
	return scanSite(database.DB.QueryRowContext(ctx,
		`SELECT site_id, domain, owner_id, created_at FROM sites WHERE domain = $1`, domain))
}

// Create registers a new site under the canonical form of rawDomain.
func Create(ctx context.Context, ownerID, rawDomain string) (*Site, error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return nil, err
	}

	return scanSite(database.DB.QueryRowContext(ctx,
		`INSERT INTO sites (domain, owner_id) VALUES ($1, $2)
		 RETURNING site_id, domain, owner_id, created_at`, domain, ownerID))
}

// List returns all registered sites, newest first.
func List(ctx context.Context) ([]Site, error) {
	rows, err := database.DB.QueryContext(ctx,
		`SELECT site_id, domain, owner_id, created_at FROM sites ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.Domain, &s.OwnerID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a site by canonical domain.
func Delete(ctx context.Context, rawDomain string) error {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return err
	}

	res, err := database.DB.ExecContext(ctx, `DELETE FROM sites WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSite(row *sql.Row) (*Site, error) {
	var s Site
	if err := row.Scan(&s.ID, &s.Domain, &s.OwnerID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
