package client

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
	"github.com/xezpeleta/eitbren-mugak/internal/safeurl"
)

// geoRestrictedMessage is the API error message that marks a geo block at the
// metadata level, before any manifest is probed.
const geoRestrictedMessage = "MEDIA_GEO_RESTRICTED_ACCESS"

// Probe methods recorded in check history.
const (
	MethodManifest = "manifest_check"
	MethodCDN      = "cdn_segment"
	MethodAPI      = "api_check"
	MethodStream   = "stream_check"
	MethodStub     = "stub"
)

// ProbeResult is the raw outcome of one geo-restriction probe, before
// classification. StatusCode is 0 when no HTTP status was obtained.
type ProbeResult struct {
	StatusCode   int
	TransportErr bool
	Source       restriction.Source
	Method       string
	Detail       string // human-readable context for logs and check history
}

// Classify folds the probe outcome through the restriction decision table.
func (r ProbeResult) Classify() (restriction.Verdict, string) {
	return restriction.Classify(r.StatusCode, r.TransportErr, r.Source)
}

// CheckGeoRestriction probes whether slug is playable from the current
// network. media may be nil; when present it supplies the manifest list and
// the audio/video distinction, saving one API round trip.
//
// The probe ladder: API-level block detection first, then each advertised
// DASH manifest (CDN-hosted ones get the two-step segment probe), then a
// constructed manifest URL as last resort. The first accessible manifest
// wins; otherwise the last restricted outcome is kept.
func (c *Client) CheckGeoRestriction(ctx context.Context, slug string, media *Media) ProbeResult {
	if c.platform.Probe == platform.ProbeManifestCDN {
		return c.checkManifests(ctx, slug, media)
	}
	return ProbeResult{
		Source: restriction.SourceManifest,
		Method: MethodStub,
		Detail: fmt.Sprintf("no probe implemented for %s", c.platform.Name),
	}
}

func (c *Client) checkManifests(ctx context.Context, slug string, media *Media) ProbeResult {
	source := restriction.SourceManifest
	if media.IsAudio() {
		source = restriction.SourceAudio
	}

	if media == nil {
		fetched, err := c.Media(ctx, slug)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				if res, ok := apiLevelBlock(apiErr); ok {
					return res
				}
			}
			// Metadata unavailable; fall through to the constructed URL.
		} else {
			media = fetched
			if media.IsAudio() {
				source = restriction.SourceAudio
			}
		}
	}

	var lastRestricted *ProbeResult
	if media != nil {
		for _, m := range media.Manifests {
			if !strings.EqualFold(m.Type, "dash") {
				continue
			}
			u := c.resolveManifestURL(m.URL)
			if !safeurl.IsHTTPOrHTTPS(u) {
				continue
			}
			var res *ProbeResult
			if isCDNHost(u) {
				res = c.checkCDNManifest(ctx, u, source)
			} else {
				res = c.checkStandardManifest(ctx, u, source)
			}
			if res == nil {
				continue
			}
			if res.StatusCode == 200 {
				return *res
			}
			if v, _ := res.Classify(); v == restriction.VerdictRestricted {
				lastRestricted = res
			}
		}
	}
	if lastRestricted != nil {
		return *lastRestricted
	}

	if res := c.checkStandardManifest(ctx, c.platform.ManifestURL(slug, c.language), source); res != nil {
		return *res
	}
	return ProbeResult{
		TransportErr: true,
		Source:       source,
		Method:       MethodManifest,
		Detail:       "could not determine geo-restriction status",
	}
}

// apiLevelBlock turns a geo-tagged API error into a probe result. Only the
// explicit geo message and server faults count; a plain 403 or 404 says
// nothing about restriction.
func apiLevelBlock(apiErr *APIError) (ProbeResult, bool) {
	switch {
	case apiErr.StatusCode == 403 && apiErr.Message == geoRestrictedMessage:
		return ProbeResult{
			StatusCode: 403,
			Source:     restriction.SourceAPI,
			Method:     MethodAPI,
			Detail:     "API reported " + geoRestrictedMessage,
		}, true
	case apiErr.StatusCode >= 500:
		return ProbeResult{
			StatusCode: apiErr.StatusCode,
			Source:     restriction.SourceAPI,
			Method:     MethodAPI,
			Detail:     fmt.Sprintf("API returned %d", apiErr.StatusCode),
		}, true
	}
	return ProbeResult{}, false
}

// checkStandardManifest GETs a manifest URL directly. Returns nil on
// transport failure so the caller can try the next candidate.
func (c *Client) checkStandardManifest(ctx context.Context, u string, source restriction.Source) *ProbeResult {
	status, err := c.fetchStatus(ctx, c.probeClient, http.MethodGet, u)
	if err != nil {
		return nil
	}
	return &ProbeResult{
		StatusCode: status,
		Source:     source,
		Method:     MethodManifest,
		Detail:     fmt.Sprintf("manifest %s returned %d", u, status),
	}
}

// checkCDNManifest probes a CDN-hosted manifest in two steps: fetch the
// manifest, then HEAD the initialization segment it references. The CDN
// serves manifests worldwide but blocks segments with 451 outside the
// licensed region, so the manifest fetch alone is not trustworthy.
func (c *Client) checkCDNManifest(ctx context.Context, u string, source restriction.Source) *ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.segmentClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ProbeResult{
			StatusCode: resp.StatusCode,
			Source:     source,
			Method:     MethodCDN,
			Detail:     fmt.Sprintf("CDN manifest %s returned %d", u, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil
	}
	segURL, ok := initSegmentURL(u, body)
	if !ok {
		// Manifest readable but unparseable; let the caller fall back.
		return nil
	}
	if !safeurl.IsHTTPOrHTTPS(segURL) {
		return nil
	}
	status, err := c.fetchStatus(ctx, c.segmentClient, http.MethodHead, segURL)
	if err != nil {
		return nil
	}
	return &ProbeResult{
		StatusCode: status,
		Source:     source,
		Method:     MethodCDN,
		Detail:     fmt.Sprintf("CDN segment %s returned %d", segURL, status),
	}
}

func (c *Client) fetchStatus(ctx context.Context, hc *http.Client, method, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// resolveManifestURL makes API-relative manifest paths absolute against the
// platform's manifest host.
func (c *Client) resolveManifestURL(u string) string {
	if strings.HasPrefix(u, "/") {
		return "https://" + c.platform.ManifestHost + u
	}
	return u
}

func isCDNHost(u string) bool {
	return strings.HasPrefix(u, "https://cdn") || strings.HasPrefix(u, "http://cdn")
}

// initSegmentURL extracts the first initialization-segment URL from a DASH
// manifest, resolved relative to the manifest's own directory.
func initSegmentURL(manifestURL string, body []byte) (string, bool) {
	var doc struct {
		Templates []struct {
			Initialization string `xml:"initialization,attr"`
		} `xml:"Period>AdaptationSet>Representation>SegmentTemplate"`
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", false
	}
	for _, t := range doc.Templates {
		if t.Initialization == "" {
			continue
		}
		if strings.HasPrefix(t.Initialization, "http://") || strings.HasPrefix(t.Initialization, "https://") {
			return t.Initialization, true
		}
		base := manifestURL
		if i := strings.LastIndex(base, "/"); i >= 0 {
			base = base[:i+1]
		}
		return base + t.Initialization, true
	}
	return "", false
}
