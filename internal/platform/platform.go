// Package platform describes the EITB streaming platforms the scraper knows
// about: API endpoints, SSO keys, probe capabilities and public URL schemes.
// The three platforms share one SSO (Gigya) and an almost identical /api/v1
// surface, so they are modeled as data, not as separate client types.
package platform

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProbeMode selects how a platform's geo-restriction probe works.
type ProbeMode string

const (
	// ProbeManifestCDN checks DASH manifests from the media API response,
	// with a secondary CDN segment probe that can surface HTTP 451 blocks
	// invisible at the manifest level.
	ProbeManifestCDN ProbeMode = "manifest+cdn"
	// ProbeStub always reports unknown. Placeholder until the platform's
	// stream delivery is reverse-engineered.
	ProbeStub ProbeMode = "stub"
)

// Platform holds everything needed to talk to one streaming platform.
type Platform struct {
	Name         string    `yaml:"name"`           // canonical identifier, e.g. "primeran.eus"
	BaseURL      string    `yaml:"base_url"`       // API root, e.g. https://primeran.eus/api/v1
	LoginURL     string    `yaml:"login_url"`      // shared Gigya SSO accounts.login endpoint
	GigyaAPIKey  string    `yaml:"gigya_api_key"`  // public web API key (per platform)
	ManifestHost string    `yaml:"manifest_host"`  // host for constructed manifest URLs
	Probe        ProbeMode `yaml:"probe"`
	// Discovery surface. Search and category pages exist only on primeran;
	// the channels page only on etbon.
	HasSearch     bool     `yaml:"has_search"`
	CategoryPages []string `yaml:"category_pages"`
	ChannelsPage  string   `yaml:"channels_page"`
	// MultiPathURLs: public content URLs differ by content type (makusi).
	MultiPathURLs bool `yaml:"multi_path_urls"`
}

const sharedLoginURL = "https://login.primeran.eus/accounts.login"

// Defaults returns the built-in platform definitions.
func Defaults() []Platform {
	return []Platform{
		{
			Name:         "primeran.eus",
			BaseURL:      "https://primeran.eus/api/v1",
			LoginURL:     sharedLoginURL,
			GigyaAPIKey:  "4_iXtBSPAhyZYN6kg3DlaQuQ",
			ManifestHost: "primeran.eus",
			Probe:        ProbeManifestCDN,
			HasSearch:    true,
			CategoryPages: []string{
				"/telesailak", "/zinema", "/dokumentalak-p", "/generoak-musika",
			},
		},
		{
			Name:         "makusi.eus",
			BaseURL:      "https://makusi.eus/api/v1",
			LoginURL:     sharedLoginURL,
			GigyaAPIKey:  "4_OrNV-xF_hgF-IKSFkQrJxg",
			ManifestHost: "makusi.eus",
			Probe:        ProbeStub,
			MultiPathURLs: true,
		},
		{
			Name:         "etbon.eus",
			BaseURL:      "https://etbon.eus/api/v1",
			LoginURL:     sharedLoginURL,
			GigyaAPIKey:  "4_eUfqY3nplenbM2JKHjSxLw",
			ManifestHost: "etbon.eus",
			Probe:        ProbeManifestCDN,
			ChannelsPage: "/zuzenekoak",
		},
	}
}

// LoadFile reads platform definitions from a YAML file. Entries override the
// built-in default with the same name; unknown names are appended.
func LoadFile(path string) ([]Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Platforms []Platform `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("platforms file %s: %w", path, err)
	}
	out := Defaults()
	for _, p := range doc.Platforms {
		p.Name = Normalize(p.Name)
		if p.LoginURL == "" {
			p.LoginURL = sharedLoginURL
		}
		replaced := false
		for i := range out {
			if out[i].Name == p.Name {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out, nil
}

// ByName returns the platform whose Name matches name (normalized), or false.
func ByName(platforms []Platform, name string) (Platform, bool) {
	name = Normalize(name)
	for _, p := range platforms {
		if p.Name == name {
			return p, true
		}
	}
	return Platform{}, false
}

// Normalize canonicalizes a platform name to the .eus form:
// "makusi" -> "makusi.eus". Empty input defaults to primeran.eus, matching
// the oldest database rows which predate the platform column.
func Normalize(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "primeran.eus"
	}
	if strings.HasSuffix(name, ".eus") {
		return name
	}
	return name + ".eus"
}

// ContentURL builds the public page URL for a piece of content. Makusi uses
// three paths depending on content type; the other platforms use /m/ for
// everything.
func (p Platform) ContentURL(slug, contentType, seriesSlug string) string {
	if p.MultiPathURLs {
		switch {
		case contentType == "episode" || (seriesSlug != "" && seriesSlug != slug):
			return fmt.Sprintf("https://%s/ikusi/w/%s", p.Name, slug)
		case strings.Contains(strings.ToLower(contentType), "series"):
			return fmt.Sprintf("https://%s/ikusi/s/%s", p.Name, slug)
		default:
			return fmt.Sprintf("https://%s/ikusi/m/%s", p.Name, slug)
		}
	}
	return fmt.Sprintf("https://%s/m/%s", p.Name, slug)
}

// ManifestURL builds the constructed DASH manifest URL used as the probe
// fallback when the API response carries no usable manifest list.
func (p Platform) ManifestURL(slug, language string) string {
	if language == "" {
		language = "eu"
	}
	return fmt.Sprintf("https://%s/manifests/%s/%s/widevine/dash.mpd", p.ManifestHost, slug, language)
}
