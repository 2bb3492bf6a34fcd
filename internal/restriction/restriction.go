// Package restriction classifies probe outcomes into a geo-restriction
// verdict. The mapping is a fixed decision table over the HTTP status code:
// the platforms return inconsistent codes (403, 451, 500) for the same
// underlying block, so all three fold into restricted, while 404 never does —
// it also fires for slugs that are not playable media at all.
package restriction

import "fmt"

// Verdict is the tri-state outcome of a geo-restriction check.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictAccessible
	VerdictRestricted
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccessible:
		return "accessible"
	case VerdictRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Bool returns the verdict as a nullable bool: restricted=true,
// accessible=false, unknown=nil.
func (v Verdict) Bool() *bool {
	switch v {
	case VerdictAccessible:
		f := false
		return &f
	case VerdictRestricted:
		tr := true
		return &tr
	default:
		return nil
	}
}

// FromBool converts a stored nullable bool back into a Verdict.
func FromBool(b *bool) Verdict {
	switch {
	case b == nil:
		return VerdictUnknown
	case *b:
		return VerdictRestricted
	default:
		return VerdictAccessible
	}
}

// Source tags which probe produced an outcome; it becomes the prefix of the
// restriction_type value ("manifest_403", "audio_403", "api_500", ...).
type Source string

const (
	SourceManifest Source = "manifest" // DASH manifest fetch (or CDN segment)
	SourceAudio    Source = "audio"    // probed asset is audio-only
	SourceAPI      Source = "api"      // the metadata API itself returned the code
	SourceStream   Source = "stream"   // live-channel stream endpoint
)

// Classify maps one probe outcome to a verdict and restriction tag. Pure:
// the same (status, transportErr, source) always yields the same result.
// A transport failure carries no status worth trusting and yields unknown.
func Classify(status int, transportErr bool, source Source) (Verdict, string) {
	if transportErr {
		return VerdictUnknown, ""
	}
	switch status {
	case 200:
		return VerdictAccessible, ""
	case 403, 451, 500:
		return VerdictRestricted, fmt.Sprintf("%s_%d", source, status)
	default:
		// 404 and anything else: content absent or inaccessible for
		// unrelated reasons; never asserted as a restriction.
		return VerdictUnknown, ""
	}
}
