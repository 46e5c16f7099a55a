// Package analytics computes dashboard metrics from the raw event log.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownDimension is returned for breakdown requests naming a dimension
// the engine does not aggregate.
var ErrUnknownDimension = errors.New("unknown breakdown dimension")

// Engine answers stats queries against the event log. All windows are
// half-open [from, to) in UTC; the comparison window immediately precedes
// the current one with the same length so no event is counted twice.
type Engine struct {
	db *sql.DB
}

// NewEngine returns an Engine reading from db.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Overview carries the headline metrics of one reporting window.
type Overview struct {
	Visitors        int64   `json:"visitors"`
	Pageviews       int64   `json:"pageviews"`
	ViewsPerVisitor float64 `json:"viewsPerVisitor"`
	BounceRate      float64 `json:"bounceRate"`
}

// Deltas holds percentage changes against the preceding window.
type Deltas struct {
	Visitors        float64 `json:"visitors"`
	Pageviews       float64 `json:"pageviews"`
	ViewsPerVisitor float64 `json:"viewsPerVisitor"`
	BounceRate      float64 `json:"bounceRate"`
}

// Item is one row of a breakdown, ordered by count descending.
type Item struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Snapshot is the full dashboard payload for one site and period.
type Snapshot struct {
	Overview         Overview `json:"overview"`
	Deltas           Deltas   `json:"deltas"`
	Chart            []Point  `json:"chart"`
	Pages            []Item   `json:"pages"`
	Referrers        []Item   `json:"referrers"`
	Countries        []Item   `json:"countries"`
	Devices          []Item   `json:"devices"`
	Browsers         []Item   `json:"browsers"`
	OperatingSystems []Item   `json:"operatingSystems"`
	UTMSources       []Item   `json:"utmSources"`
	UTMMediums       []Item   `json:"utmMediums"`
	UTMCampaigns     []Item   `json:"utmCampaigns"`
	Events           []Item   `json:"events"`
}

// dimensionSpec describes how one breakdown is aggregated. placeholder
// substitutes for NULL values; skipNull drops NULL rows instead. The
// column names come from this fixed table, never from user input.
type dimensionSpec struct {
	column      string
	placeholder string
	skipNull    bool
	limit       int
	kind        string
}

var dimensions = map[string]dimensionSpec{
	"page":         {column: "pathname", limit: 10, kind: "pageview"},
	"referrer":     {column: "referrer", placeholder: "Direct", limit: 10, kind: "pageview"},
	"country":      {column: "country", placeholder: "Unknown", limit: 10, kind: "pageview"},
	"device":       {column: "device", limit: 5, kind: "pageview"},
	"browser":      {column: "browser", limit: 5, kind: "pageview"},
	"os":           {column: "os", limit: 5, kind: "pageview"},
	"utm_source":   {column: "utm_source", skipNull: true, limit: 10, kind: "pageview"},
	"utm_medium":   {column: "utm_medium", skipNull: true, limit: 10, kind: "pageview"},
	"utm_campaign": {column: "utm_campaign", skipNull: true, limit: 10, kind: "pageview"},
	"utm_term":     {column: "utm_term", skipNull: true, limit: 10, kind: "pageview"},
	"utm_content":  {column: "utm_content", skipNull: true, limit: 10, kind: "pageview"},
	"event":        {column: "event_name", skipNull: true, limit: 10, kind: "custom"},
}

func (d dimensionSpec) query() string {
	col := d.column
	if d.placeholder != "" {
		col = fmt.Sprintf("COALESCE(%s, '%s')", d.column, d.placeholder)
	}
	where := fmt.Sprintf("site_id = $1 AND kind = '%s' AND created_at >= $2 AND created_at < $3", d.kind)
	if d.skipNull {
		where += fmt.Sprintf(" AND %s IS NOT NULL", d.column)
	}
	// Ties break alphabetically so pagination and tests are stable.
	return fmt.Sprintf(
		"SELECT %s AS name, COUNT(*) AS count FROM events WHERE %s GROUP BY name ORDER BY count DESC, name ASC LIMIT %d",
		col, where, d.limit)
}

// Breakdown aggregates one dimension over [from, to).
func (e *Engine) Breakdown(ctx context.Context, siteID uuid.UUID, dimension string, from, to time.Time) ([]Item, error) {
	spec, ok := dimensions[dimension]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}

	rows, err := e.db.QueryContext(ctx, spec.query(), siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s breakdown: %w", dimension, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Name, &it.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s breakdown: %w", dimension, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const overviewQuery = `
	SELECT COUNT(DISTINCT visitor_hash), COUNT(*)
	FROM events
	WHERE site_id = $1 AND kind = 'pageview' AND created_at >= $2 AND created_at < $3`

func (e *Engine) overview(ctx context.Context, siteID uuid.UUID, from, to time.Time) (visitors, views int64, err error) {
	err = e.db.QueryRowContext(ctx, overviewQuery, siteID, from, to).Scan(&visitors, &views)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query overview: %w", err)
	}
	return visitors, views, nil
}

// Bounce rate is the fraction of visitors whose window contains exactly one
// pageview, in [0, 1]. An empty window reports 0.
const bounceRateQuery = `
	SELECT COALESCE(COUNT(*) FILTER (WHERE views = 1)::float / NULLIF(COUNT(*), 0), 0)
	FROM (
		SELECT visitor_hash, COUNT(*) AS views
		FROM events
		WHERE site_id = $1 AND kind = 'pageview' AND created_at >= $2 AND created_at < $3
		GROUP BY visitor_hash
	) per_visitor`

func (e *Engine) bounceRate(ctx context.Context, siteID uuid.UUID, from, to time.Time) (float64, error) {
	var rate float64
	err := e.db.QueryRowContext(ctx, bounceRateQuery, siteID, from, to).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("failed to query bounce rate: %w", err)
	}
	return math.Round(rate*1000) / 1000, nil
}

// chartQuery buckets pageviews by day or hour. The AT TIME ZONE cast pins
// bucket labels to UTC so they line up with FillGaps keys regardless of
// the database session timezone.
func chartQuery(g Granularity) string {
	format := "YYYY-MM-DD"
	if g == GranularityHour {
		format = `YYYY-MM-DD HH24:00`
	}
	return fmt.Sprintf(`
		SELECT to_char(created_at AT TIME ZONE 'UTC', '%s') AS bucket,
		       COUNT(*) AS views,
		       COUNT(DISTINCT visitor_hash) AS visitors
		FROM events
		WHERE site_id = $1 AND kind = 'pageview' AND created_at >= $2 AND created_at < $3
		GROUP BY bucket
		ORDER BY bucket ASC`, format)
}

func (e *Engine) chart(ctx context.Context, siteID uuid.UUID, from, to time.Time, g Granularity) ([]Point, error) {
	rows, err := e.db.QueryContext(ctx, chartQuery(g), siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query chart: %w", err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Bucket, &p.Views, &p.Visitors); err != nil {
			return nil, fmt.Errorf("failed to scan chart row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return FillGaps(points, from, to, g), nil
}

// snapshotDimensions maps Snapshot fields to breakdown dimensions.
var snapshotDimensions = []struct {
	dimension string
	assign    func(*Snapshot, []Item)
}{
	{"page", func(s *Snapshot, v []Item) { s.Pages = v }},
	{"referrer", func(s *Snapshot, v []Item) { s.Referrers = v }},
	{"country", func(s *Snapshot, v []Item) { s.Countries = v }},
	{"device", func(s *Snapshot, v []Item) { s.Devices = v }},
	{"browser", func(s *Snapshot, v []Item) { s.Browsers = v }},
	{"os", func(s *Snapshot, v []Item) { s.OperatingSystems = v }},
	{"utm_source", func(s *Snapshot, v []Item) { s.UTMSources = v }},
	{"utm_medium", func(s *Snapshot, v []Item) { s.UTMMediums = v }},
	{"utm_campaign", func(s *Snapshot, v []Item) { s.UTMCampaigns = v }},
	{"event", func(s *Snapshot, v []Item) { s.Events = v }},
}

// ComputeSnapshot assembles the full dashboard payload for one site. The
// component queries fan out concurrently; the first failure cancels the
// rest and fails the whole snapshot rather than returning partial data.
func (e *Engine) ComputeSnapshot(ctx context.Context, siteID uuid.UUID, period Period, now time.Time) (*Snapshot, error) {
	from, to := period.Range(now)
	prevFrom := from.Add(-period.Duration())

	snap := &Snapshot{}
	var curVisitors, curViews, prevVisitors, prevViews int64
	var curBounce, prevBounce float64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		curVisitors, curViews, err = e.overview(gctx, siteID, from, to)
		return err
	})
	g.Go(func() (err error) {
		prevVisitors, prevViews, err = e.overview(gctx, siteID, prevFrom, from)
		return err
	})
	g.Go(func() (err error) {
		curBounce, err = e.bounceRate(gctx, siteID, from, to)
		return err
	})
	g.Go(func() (err error) {
		prevBounce, err = e.bounceRate(gctx, siteID, prevFrom, from)
		return err
	})
	g.Go(func() (err error) {
		snap.Chart, err = e.chart(gctx, siteID, from, to, ChooseGranularity(from, to))
		return err
	})
	for _, sd := range snapshotDimensions {
		g.Go(func() error {
			items, err := e.Breakdown(gctx, siteID, sd.dimension, from, to)
			if err != nil {
				return err
			}
			sd.assign(snap, items)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Overview = Overview{
		Visitors:        curVisitors,
		Pageviews:       curViews,
		ViewsPerVisitor: viewsPerVisitor(curViews, curVisitors),
		BounceRate:      curBounce,
	}
	snap.Deltas = Deltas{
		Visitors:        Delta(float64(curVisitors), float64(prevVisitors)),
		Pageviews:       Delta(float64(curViews), float64(prevViews)),
		ViewsPerVisitor: Delta(snap.Overview.ViewsPerVisitor, viewsPerVisitor(prevViews, prevVisitors)),
		BounceRate:      Delta(curBounce, prevBounce),
	}
	return snap, nil
}

func viewsPerVisitor(views, visitors int64) float64 {
	if visitors == 0 {
		return 0
	}
	return math.Round(float64(views)/float64(visitors)*100) / 100
}

// LiveVisitors counts distinct visitor fingerprints seen in the last five
// minutes.
func (e *Engine) LiveVisitors(ctx context.Context, siteID uuid.UUID) (int64, error) {
	var n int64
	err := e.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT visitor_hash)
		FROM events
		WHERE site_id = $1 AND created_at > NOW() - INTERVAL '5 minutes'`, siteID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to query live visitors: %w", err)
	}
	return n, nil
}

// SiteSummary is one row of the multi-site dashboard. The delta compares
// pageviews in the trailing week against the week before it.
type SiteSummary struct {
	SiteID        uuid.UUID `json:"siteId"`
	Domain        string    `json:"domain"`
	Visitors      int64     `json:"visitors"`
	Pageviews     int64     `json:"pageviews"`
	PreviousViews int64     `json:"previousViews"`
	ViewsDelta    float64   `json:"viewsDelta"`
	Chart         []Point   `json:"chart"`
}

type siteCounts struct {
	visitors int64
	views    int64
}

// SummarizeSites computes seven-day cards for many sites in four batched
// queries instead of one round trip per site. Results preserve the order
// of ids; unknown ids are dropped.
func (e *Engine) SummarizeSites(ctx context.Context, ids []uuid.UUID, now time.Time) ([]SiteSummary, error) {
	if len(ids) == 0 {
		return []SiteSummary{}, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	arr := pq.Array(idStrings)

	to := now.UTC()
	from := to.Add(-7 * 24 * time.Hour)
	prevFrom := from.Add(-7 * 24 * time.Hour)

	domains := map[uuid.UUID]string{}
	current := map[uuid.UUID]siteCounts{}
	previous := map[uuid.UUID]siteCounts{}
	charts := map[uuid.UUID][]Point{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := e.db.QueryContext(gctx,
			`SELECT site_id, domain FROM sites WHERE site_id = ANY($1::uuid[])`, arr)
		if err != nil {
			return fmt.Errorf("failed to query site domains: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			var domain string
			if err := rows.Scan(&id, &domain); err != nil {
				return err
			}
			domains[id] = domain
		}
		return rows.Err()
	})

	countsQuery := `
		SELECT site_id, COUNT(DISTINCT visitor_hash), COUNT(*)
		FROM events
		WHERE site_id = ANY($1::uuid[]) AND kind = 'pageview' AND created_at >= $2 AND created_at < $3
		GROUP BY site_id`

	collectCounts := func(dst map[uuid.UUID]siteCounts, from, to time.Time) func() error {
		return func() error {
			rows, err := e.db.QueryContext(gctx, countsQuery, arr, from, to)
			if err != nil {
				return fmt.Errorf("failed to query site counts: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var id uuid.UUID
				var c siteCounts
				if err := rows.Scan(&id, &c.visitors, &c.views); err != nil {
					return err
				}
				dst[id] = c
			}
			return rows.Err()
		}
	}
	g.Go(collectCounts(current, from, to))
	g.Go(collectCounts(previous, prevFrom, from))

	g.Go(func() error {
		rows, err := e.db.QueryContext(gctx, `
			SELECT site_id, to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS bucket,
			       COUNT(*) AS views,
			       COUNT(DISTINCT visitor_hash) AS visitors
			FROM events
			WHERE site_id = ANY($1::uuid[]) AND kind = 'pageview' AND created_at >= $2 AND created_at < $3
			GROUP BY site_id, bucket
			ORDER BY bucket ASC`, arr, from, to)
		if err != nil {
			return fmt.Errorf("failed to query site charts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			var p Point
			if err := rows.Scan(&id, &p.Bucket, &p.Views, &p.Visitors); err != nil {
				return err
			}
			charts[id] = append(charts[id], p)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]SiteSummary, 0, len(ids))
	for _, id := range ids {
		domain, ok := domains[id]
		if !ok {
			continue
		}
		cur, prev := current[id], previous[id]
		summaries = append(summaries, SiteSummary{
			SiteID:        id,
			Domain:        domain,
			Visitors:      cur.visitors,
			Pageviews:     cur.views,
			PreviousViews: prev.views,
			ViewsDelta:    Delta(float64(cur.views), float64(prev.views)),
			Chart:         FillGaps(charts[id], from, to, GranularityDay),
		})
	}
	return summaries, nil
}
