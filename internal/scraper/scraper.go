// Package scraper drives a crawl over one platform: discover content slugs,
// fetch their metadata, probe geo-restriction, and persist everything. The
// crawl is sequential and paced by a rate limiter so the platforms never see
// request bursts.
package scraper

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xezpeleta/eitbren-mugak/internal/client"
	"github.com/xezpeleta/eitbren-mugak/internal/metrics"
	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
	"github.com/xezpeleta/eitbren-mugak/internal/store"
)

// API is the platform surface the scraper needs. Satisfied by *client.Client;
// tests substitute a fake.
type API interface {
	Platform() platform.Platform
	Media(ctx context.Context, slug string) (*client.Media, error)
	Series(ctx context.Context, slug string) (*client.Series, error)
	Home(ctx context.Context) (map[string]any, error)
	Page(ctx context.Context, path string) (map[string]any, error)
	Search(ctx context.Context, query string) (map[string]any, error)
	CheckGeoRestriction(ctx context.Context, slug string, media *client.Media) client.ProbeResult
	Channels(ctx context.Context) ([]client.Channel, error)
	CheckChannel(ctx context.Context, slug string) client.ProbeResult
}

// Options configures a crawl.
type Options struct {
	// Delay is the minimum spacing between network operations.
	Delay time.Duration
	// Limit caps how many media items and how many series are processed.
	// Zero means no cap.
	Limit int
	// MetadataOnly skips the geo probes; stored verdicts are preserved.
	MetadataOnly bool
	Metrics      *metrics.Collector
}

// RunStats summarizes one crawl.
type RunStats struct {
	Discovered int
	Checked    int
	Restricted int
	Accessible int
	Unknown    int
	Errors     int
}

// Scraper crawls one platform into one store.
type Scraper struct {
	api     API
	store   *store.Store
	limiter *rate.Limiter
	opts    Options
	seen    map[string]bool
	stats   RunStats
}

func New(api API, st *store.Store, opts Options) *Scraper {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	return &Scraper{
		api:     api,
		store:   st,
		limiter: limiter,
		opts:    opts,
		seen:    make(map[string]bool),
	}
}

// Stats returns the counters accumulated so far.
func (s *Scraper) Stats() RunStats {
	return s.stats
}

func (s *Scraper) pace(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *Scraper) platformName() string {
	return s.api.Platform().Name
}

// Run performs a full crawl. Empty slug lists trigger discovery; explicit
// lists skip it. Returns early only on authentication failure or context
// cancellation; per-item failures are counted and logged.
func (s *Scraper) Run(ctx context.Context, mediaSlugs, seriesSlugs []string) (RunStats, error) {
	if len(mediaSlugs) == 0 && len(seriesSlugs) == 0 {
		var err error
		mediaSlugs, seriesSlugs, err = s.Discover(ctx)
		if err != nil {
			return s.stats, err
		}
	}
	s.stats.Discovered += len(mediaSlugs) + len(seriesSlugs)
	for range mediaSlugs {
		s.opts.Metrics.RecordDiscovered(s.platformName())
	}
	for range seriesSlugs {
		s.opts.Metrics.RecordDiscovered(s.platformName())
	}

	if s.opts.Limit > 0 {
		if len(mediaSlugs) > s.opts.Limit {
			mediaSlugs = mediaSlugs[:s.opts.Limit]
		}
		if len(seriesSlugs) > s.opts.Limit {
			seriesSlugs = seriesSlugs[:s.opts.Limit]
		}
	}

	log.Printf("checking %d media items on %s", len(mediaSlugs), s.platformName())
	for _, slug := range mediaSlugs {
		if s.seen[slug] {
			continue
		}
		s.seen[slug] = true
		if err := s.itemError(ctx, slug, s.CheckMedia(ctx, slug)); err != nil {
			return s.stats, err
		}
	}

	log.Printf("checking %d series on %s", len(seriesSlugs), s.platformName())
	for _, slug := range seriesSlugs {
		if s.seen[slug] {
			continue
		}
		s.seen[slug] = true
		if err := s.itemError(ctx, slug, s.CheckSeries(ctx, slug)); err != nil {
			return s.stats, err
		}
	}
	return s.stats, nil
}

// Recheck re-runs checks over records already in the store (used for the
// geo-restricted-only and missing-metadata modes).
func (s *Scraper) Recheck(ctx context.Context, f store.Filter) (RunStats, error) {
	recs, err := s.store.List(f)
	if err != nil {
		return s.stats, err
	}
	if s.opts.Limit > 0 && len(recs) > s.opts.Limit {
		recs = recs[:s.opts.Limit]
	}
	log.Printf("rechecking %d stored records on %s", len(recs), s.platformName())
	for _, rec := range recs {
		if s.seen[rec.Slug] {
			continue
		}
		s.seen[rec.Slug] = true
		var err error
		if rec.Type == "series" {
			err = s.CheckSeries(ctx, rec.Slug)
		} else {
			err = s.CheckMedia(ctx, rec.Slug)
		}
		if err := s.itemError(ctx, rec.Slug, err); err != nil {
			return s.stats, err
		}
	}
	return s.stats, nil
}

// fatal reports whether an error must abort the crawl.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, client.ErrAuth) || ctx.Err() != nil
}

// itemError absorbs a store failure so the crawl moves on to the next slug;
// auth failures and cancellation still abort.
func (s *Scraper) itemError(ctx context.Context, slug string, err error) error {
	if err == nil || fatal(ctx, err) {
		return err
	}
	log.Printf("error saving %s: %v", slug, err)
	s.stats.Errors++
	s.opts.Metrics.RecordError("store")
	return nil
}

// CheckMedia fetches one media item, probes it, and persists the result.
// Returns an error only for fatal conditions.
func (s *Scraper) CheckMedia(ctx context.Context, slug string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	m, err := s.api.Media(ctx, slug)
	if err != nil {
		return s.handleMediaError(ctx, slug, "", err)
	}
	return s.persistChecked(ctx, mediaRecord(m, s.api.Platform()), m)
}

// handleMediaError deals with a failed media fetch. A 403 or 500 from the
// metadata API is itself a restriction signal and produces a record with
// whatever the error payload carried; 404 is a silent skip (discovery picks
// up slugs of pages and collections that are not media).
func (s *Scraper) handleMediaError(ctx context.Context, slug, seriesSlug string, err error) error {
	if fatal(ctx, err) {
		return err
	}
	if errors.Is(err, client.ErrNotFound) {
		log.Printf("skipping %s: not found", slug)
		return nil
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == 403 || apiErr.StatusCode == 500) {
		return s.persistAPIRestricted(slug, seriesSlug, apiErr)
	}
	log.Printf("error checking %s: %v", slug, err)
	s.stats.Errors++
	s.opts.Metrics.RecordError("media_fetch")
	return nil
}

// persistAPIRestricted records a slug whose metadata endpoint already
// returned a blocking code. The error payload sometimes carries partial
// metadata (season_data, collection), which is used to type the record; the
// title is reconstructed from the slug.
func (s *Scraper) persistAPIRestricted(slug, seriesSlug string, apiErr *client.APIError) error {
	p := s.api.Platform()
	contentType := "unknown"
	seriesTitle := ""
	if sd, ok := apiErr.Payload["season_data"].(map[string]any); ok {
		if ss, _ := sd["series_slug"].(string); ss != "" {
			contentType = "episode"
			seriesSlug = ss
			seriesTitle, _ = sd["series_title"].(string)
		}
	} else if coll, _ := apiErr.Payload["collection"].(string); coll == "series" {
		contentType = "series"
	}
	if seriesSlug != "" && contentType == "unknown" {
		contentType = "episode"
	}

	msg := apiErr.Message
	if msg == "" {
		msg = "geo-restricted"
	}
	metadata := map[string]any{
		"error":          msg,
		"api_restricted": true,
		"platform_urls": map[string]any{
			p.Name: p.ContentURL(slug, contentType, seriesSlug),
		},
	}

	status := apiErr.StatusCode
	_, tag := restriction.Classify(status, false, restriction.SourceAPI)
	restricted := true
	now := time.Now().UTC()

	rec := store.Record{
		Slug:            slug,
		Title:           humanizeSlug(slug),
		Type:            contentType,
		SeriesSlug:      seriesSlug,
		SeriesTitle:     seriesTitle,
		Platforms:       []string{p.Name},
		Metadata:        metadata,
		GeoRestricted:   &restricted,
		RestrictionType: tag,
		LastChecked:     now,
	}
	if err := s.store.Upsert(rec); err != nil {
		return err
	}
	// History appends are best-effort; a failed append never fails the check.
	if err := s.store.RecordCheck(store.Check{
		Slug: slug, Platform: p.Name, CheckedAt: now,
		GeoRestricted: &restricted, RestrictionType: tag,
		StatusCode: status, Method: client.MethodAPI,
	}); err != nil {
		log.Printf("history append for %s failed: %v", slug, err)
	}
	log.Printf("%s: geo-restricted at API level (%d)", slug, status)
	s.stats.Checked++
	s.stats.Restricted++
	s.opts.Metrics.RecordCheck(p.Name, restriction.VerdictRestricted.String())
	return nil
}

// persistChecked runs the probe (unless metadata-only) and upserts the
// record. media may describe a standalone item or an episode.
func (s *Scraper) persistChecked(ctx context.Context, rec store.Record, m *client.Media) error {
	p := s.api.Platform()
	if s.opts.MetadataOnly {
		// Upsert without a verdict: the store keeps whatever was known.
		if err := s.store.Upsert(rec); err != nil {
			return err
		}
		s.stats.Checked++
		return nil
	}

	res := s.api.CheckGeoRestriction(ctx, m.Slug, m)
	if err := s.pace(ctx); err != nil {
		return err
	}
	s.opts.Metrics.RecordProbe(res.Method)
	verdict, tag := res.Classify()

	rec.GeoRestricted = verdict.Bool()
	rec.RestrictionType = tag
	rec.LastChecked = time.Now().UTC()
	if err := s.store.Upsert(rec); err != nil {
		return err
	}
	if err := s.store.RecordCheck(store.Check{
		Slug: m.Slug, Platform: p.Name, CheckedAt: rec.LastChecked,
		GeoRestricted: rec.GeoRestricted, RestrictionType: tag,
		StatusCode: res.StatusCode, Method: res.Method,
	}); err != nil {
		log.Printf("history append for %s failed: %v", m.Slug, err)
	}

	s.stats.Checked++
	s.opts.Metrics.RecordCheck(p.Name, verdict.String())
	switch verdict {
	case restriction.VerdictRestricted:
		log.Printf("%s: restricted (%s)", m.Slug, tag)
		s.stats.Restricted++
	case restriction.VerdictAccessible:
		s.stats.Accessible++
	default:
		log.Printf("%s: status unclear (%s)", m.Slug, res.Detail)
		s.stats.Unknown++
	}
	return nil
}

// mediaRecord converts an API media document into a store record.
func mediaRecord(m *client.Media, p platform.Platform) store.Record {
	metadata := make(map[string]any, len(m.Raw)+2)
	for k, v := range m.Raw {
		metadata[k] = v
	}
	if m.MediaType != "" {
		metadata["media_type"] = m.MediaType
	}
	metadata["platform_urls"] = map[string]any{
		p.Name: p.ContentURL(m.Slug, m.Type, m.SeriesSlug),
	}
	return store.Record{
		Slug:         m.Slug,
		Title:        m.Title,
		Type:         m.Type,
		MediaType:    m.MediaType,
		Duration:     m.Duration,
		Year:         m.Year,
		Genres:       m.Genres,
		SeriesSlug:   m.SeriesSlug,
		SeriesTitle:  m.SeriesTitle,
		SeasonNumber: m.SeasonNumber,
		Platforms:    []string{p.Name},
		Metadata:     metadata,
	}
}

// humanizeSlug makes a display title out of a slug when the API gives none:
// "la-infiltrada" becomes "La Infiltrada".
func humanizeSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
