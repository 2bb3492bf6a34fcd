package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
)

// Channel is one live channel entry found on the channels page.
type Channel struct {
	Slug          string
	Title         string
	IsFastChannel bool
	M3U8          string
	MPD           string
	Raw           map[string]any
}

// Channels lists the live channels advertised on the platform's channels
// page. Platforms without one return an empty list.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	if c.platform.ChannelsPage == "" {
		return nil, nil
	}
	doc, err := c.Page(ctx, c.platform.ChannelsPage)
	if err != nil {
		return nil, err
	}
	var out []Channel
	seen := make(map[string]bool)
	walkLiveNodes(doc, func(node map[string]any) {
		slug := str(node, "slug")
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		out = append(out, Channel{
			Slug:          slug,
			Title:         str(node, "title"),
			IsFastChannel: boolField(node, "is_fast_channel"),
			M3U8:          str(node, "m3u8"),
			MPD:           str(node, "mpd"),
			Raw:           node,
		})
	})
	return out, nil
}

// CheckChannel probes the live stream endpoint for one channel slug. Without
// a session the endpoint's status codes mean nothing, so any login failure
// yields an unknown verdict instead of an unauthenticated probe.
func (c *Client) CheckChannel(ctx context.Context, slug string) ProbeResult {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return ProbeResult{
			TransportErr: true,
			Source:       restriction.SourceStream,
			Method:       MethodStream,
			Detail:       "authentication failed before stream check",
		}
	}
	u := c.platform.BaseURL + "/stream/" + slug
	status, err := c.fetchStatus(ctx, c.probeClient, http.MethodGet, u)
	if err != nil {
		return ProbeResult{
			TransportErr: true,
			Source:       restriction.SourceStream,
			Method:       MethodStream,
			Detail:       "stream endpoint unreachable",
		}
	}
	return ProbeResult{
		StatusCode: status,
		Source:     restriction.SourceStream,
		Method:     MethodStream,
		Detail:     fmt.Sprintf("stream %s returned %d", slug, status),
	}
}

// walkLiveNodes recursively visits every object in the page tree and calls fn
// on nodes typed "live". The page nests content under varying keys (children,
// menu_links, items), so the walk is shape-agnostic.
func walkLiveNodes(v any, fn func(map[string]any)) {
	switch node := v.(type) {
	case map[string]any:
		if str(node, "type") == "live" {
			fn(node)
		}
		for _, child := range node {
			walkLiveNodes(child, fn)
		}
	case []any:
		for _, child := range node {
			walkLiveNodes(child, fn)
		}
	}
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
