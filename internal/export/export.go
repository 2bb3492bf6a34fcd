// Package export renders the catalog database into the JSON documents the
// static website consumes: content.json (everything), statistics.json (the
// dashboard counters), and geo-restricted.json (the blocked subset).
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/store"
)

// Item is one content entry in content.json. Pointer and any-typed fields
// render as null when the metadata never carried them.
type Item struct {
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Type            string   `json:"type"`
	Duration        int      `json:"duration"`
	Year            int      `json:"year"`
	Genres          []string `json:"genres"`
	SeriesSlug      string   `json:"series_slug"`
	SeriesTitle     string   `json:"series_title"`
	SeasonNumber    int      `json:"season_number"`
	EpisodeNumber   any      `json:"episode_number"`
	IsGeoRestricted *bool    `json:"is_geo_restricted"`
	RestrictionType string   `json:"restriction_type"`
	LastChecked     string   `json:"last_checked"`

	Description       any      `json:"description"`
	Thumbnail         any      `json:"thumbnail"`
	AgeRating         any      `json:"age_rating"`
	AccessRestriction any      `json:"access_restriction"`
	AvailableUntil    any      `json:"available_until"`
	Languages         []string `json:"languages"`
	Platform          string   `json:"platform"`
	Platforms         []string `json:"platforms"`
	ContentURL        string   `json:"content_url"`
}

// RestrictedItem is the slimmer entry used in geo-restricted.json.
type RestrictedItem struct {
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	Type          string `json:"type"`
	SeriesTitle   string `json:"series_title"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber any    `json:"episode_number"`
	LastChecked   string `json:"last_checked"`

	Description       any      `json:"description"`
	Thumbnail         any      `json:"thumbnail"`
	AgeRating         any      `json:"age_rating"`
	AccessRestriction any      `json:"access_restriction"`
	AvailableUntil    any      `json:"available_until"`
	Languages         []string `json:"languages"`
	Platform          string   `json:"platform"`
	Platforms         []string `json:"platforms"`
	ContentURL        string   `json:"content_url"`
}

// Statistics mirrors the counters block in statistics.json and content.json.
type Statistics struct {
	TotalContent            int            `json:"total_content"`
	ByType                  map[string]int `json:"by_type"`
	ByPlatform              map[string]int `json:"by_platform"`
	GeoRestrictedCount      int            `json:"geo_restricted_count"`
	AccessibleCount         int            `json:"accessible_count"`
	UnknownCount            int            `json:"unknown_count"`
	GeoRestrictedPercentage float64        `json:"geo_restricted_percentage"`
	LastCheck               string         `json:"last_check"`
}

type contentDocument struct {
	ExportDate string     `json:"export_date"`
	Statistics Statistics `json:"statistics"`
	Content    []Item     `json:"content"`
}

type statisticsDocument struct {
	ExportDate string     `json:"export_date"`
	Statistics Statistics `json:"statistics"`
}

type restrictedDocument struct {
	ExportDate string           `json:"export_date"`
	Count      int              `json:"count"`
	Content    []RestrictedItem `json:"content"`
}

// Exporter reads from a store and writes the JSON documents into OutputDir.
type Exporter struct {
	store     *store.Store
	platforms []platform.Platform
	outputDir string
}

func New(st *store.Store, platforms []platform.Platform, outputDir string) *Exporter {
	return &Exporter{store: st, platforms: platforms, outputDir: outputDir}
}

// Run writes all three documents.
func (e *Exporter) Run() error {
	if err := e.ExportContent(); err != nil {
		return err
	}
	if err := e.ExportStatistics(); err != nil {
		return err
	}
	return e.ExportGeoRestricted()
}

// ExportContent writes content.json with every record plus the statistics
// block.
func (e *Exporter) ExportContent() error {
	recs, err := e.store.List(store.Filter{})
	if err != nil {
		return err
	}
	stats, err := e.statistics()
	if err != nil {
		return err
	}
	doc := contentDocument{
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Statistics: stats,
		Content:    make([]Item, 0, len(recs)),
	}
	for _, rec := range recs {
		doc.Content = append(doc.Content, e.item(rec))
	}
	return e.save("content.json", doc)
}

// ExportStatistics writes the lighter statistics.json for the dashboard.
func (e *Exporter) ExportStatistics() error {
	stats, err := e.statistics()
	if err != nil {
		return err
	}
	return e.save("statistics.json", statisticsDocument{
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Statistics: stats,
	})
}

// ExportGeoRestricted writes geo-restricted.json with the blocked subset.
func (e *Exporter) ExportGeoRestricted() error {
	recs, err := e.store.List(store.Filter{GeoRestrictedOnly: true})
	if err != nil {
		return err
	}
	doc := restrictedDocument{
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Count:      len(recs),
		Content:    make([]RestrictedItem, 0, len(recs)),
	}
	for _, rec := range recs {
		full := e.item(rec)
		doc.Content = append(doc.Content, RestrictedItem{
			Slug:              full.Slug,
			Title:             full.Title,
			Type:              full.Type,
			SeriesTitle:       full.SeriesTitle,
			SeasonNumber:      full.SeasonNumber,
			EpisodeNumber:     full.EpisodeNumber,
			LastChecked:       full.LastChecked,
			Description:       full.Description,
			Thumbnail:         full.Thumbnail,
			AgeRating:         full.AgeRating,
			AccessRestriction: full.AccessRestriction,
			AvailableUntil:    full.AvailableUntil,
			Languages:         full.Languages,
			Platform:          full.Platform,
			Platforms:         full.Platforms,
			ContentURL:        full.ContentURL,
		})
	}
	return e.save("geo-restricted.json", doc)
}

func (e *Exporter) statistics() (Statistics, error) {
	st, err := e.store.Statistics()
	if err != nil {
		return Statistics{}, err
	}
	out := Statistics{
		TotalContent:            st.Total,
		ByType:                  st.ByType,
		ByPlatform:              st.ByPlatform,
		GeoRestrictedCount:      st.Restricted,
		AccessibleCount:         st.Accessible,
		UnknownCount:            st.Unknown,
		GeoRestrictedPercentage: st.RestrictedPercentage,
	}
	if !st.LastCheck.IsZero() {
		out.LastCheck = st.LastCheck.UTC().Format(time.RFC3339)
	}
	return out, nil
}

func (e *Exporter) item(rec store.Record) Item {
	genres := rec.Genres
	if genres == nil {
		genres = []string{}
	}
	primary := "primeran.eus"
	if len(rec.Platforms) > 0 {
		primary = rec.Platforms[0]
	}
	item := Item{
		Slug:            rec.Slug,
		Title:           rec.Title,
		Type:            rec.Type,
		Duration:        rec.Duration,
		Year:            rec.Year,
		Genres:          genres,
		SeriesSlug:      rec.SeriesSlug,
		SeriesTitle:     rec.SeriesTitle,
		SeasonNumber:    rec.SeasonNumber,
		EpisodeNumber:   metaPath(rec.Metadata, "episode_number"),
		IsGeoRestricted: rec.GeoRestricted,
		RestrictionType: rec.RestrictionType,

		Description:       metaPath(rec.Metadata, "description"),
		Thumbnail:         metaPath(rec.Metadata, "images", "0", "file"),
		AccessRestriction: metaPath(rec.Metadata, "access_restriction"),
		AvailableUntil:    metaPath(rec.Metadata, "available_until"),
		Languages:         languages(rec.Metadata),
		Platform:          primary,
		Platforms:         rec.Platforms,
		ContentURL:        e.contentURL(primary, rec),
	}
	if item.AgeRating = metaPath(rec.Metadata, "age_rating", "label"); item.AgeRating == nil {
		item.AgeRating = metaPath(rec.Metadata, "age_rating", "age")
	}
	if !rec.LastChecked.IsZero() {
		item.LastChecked = rec.LastChecked.UTC().Format(time.RFC3339)
	}
	return item
}

func (e *Exporter) contentURL(name string, rec store.Record) string {
	p, ok := platform.ByName(e.platforms, name)
	if !ok {
		p = platform.Platform{Name: platform.Normalize(name)}
	}
	return p.ContentURL(rec.Slug, rec.Type, rec.SeriesSlug)
}

// metaPath walks a metadata tree by keys; a numeric key indexes into an
// array. Returns nil when any step is missing.
func metaPath(m map[string]any, keys ...string) any {
	var cur any = m
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			idx := -1
			fmt.Sscanf(key, "%d", &idx)
			if idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// languages extracts the audio language codes, falling back to subtitle
// languages for items without audio track metadata.
func languages(m map[string]any) []string {
	set := make(map[string]bool)
	if audios, ok := m["audios"].([]any); ok {
		for _, a := range audios {
			if am, ok := a.(map[string]any); ok {
				if code, _ := am["code"].(string); code != "" {
					set[code] = true
				}
			}
		}
	}
	if len(set) == 0 {
		if subs, ok := m["subtitle"].([]any); ok {
			for _, s := range subs {
				sm, ok := s.(map[string]any)
				if !ok {
					continue
				}
				if lang, ok := sm["language"].(map[string]any); ok {
					if code, _ := lang["code"].(string); code != "" {
						set[code] = true
					}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// save writes a document atomically: temp file in the same directory, then
// rename over the target.
func (e *Exporter) save(name string, doc any) error {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return fmt.Errorf("export: mkdir %s: %w", e.outputDir, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal %s: %w", name, err)
	}
	target := filepath.Join(e.outputDir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("export: rename %s: %w", target, err)
	}
	return nil
}
