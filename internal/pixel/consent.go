package pixel

import (
	"net/url"
	"strings"

	"github.com/ignite/pixel-relay/internal/sink"
)

// Grants is the three-flag consent decision.
type Grants struct {
	Analytics   bool
	Marketing   bool
	Preferences bool
}

// GrantsFromPrivacy maps the customer-privacy payload onto grants.
func GrantsFromPrivacy(p CustomerPrivacy) Grants {
	return Grants{
		Analytics:   p.AnalyticsProcessingAllowed,
		Marketing:   p.MarketingAllowed,
		Preferences: p.PreferencesProcessingAllowed,
	}
}

func grantString(b bool) string {
	if b {
		return "granted"
	}
	return "denied"
}

// ParseConsentCookie parses a consent cookie value: key:value pairs joined
// by commas, URL-encoded as a single cookie value. Recognized keys are
// analytics, marketing and preferences; anything but the literal "true"
// counts as denied. ok is false when the value is absent or malformed, in
// which case the caller treats the cookie as missing (all grants denied).
func ParseConsentCookie(raw string) (Grants, bool) {
	if raw == "" {
		return Grants{}, false
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return Grants{}, false
	}

	var g Grants
	for _, pair := range strings.Split(decoded, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return Grants{}, false
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1]) == "true"
		switch key {
		case "analytics":
			g.Analytics = val
		case "marketing":
			g.Marketing = val
		case "preferences":
			g.Preferences = val
		}
	}
	return g, true
}

// ConsentUpdateRecord is the resolution record pushed ahead of any replayed
// analytics events.
func ConsentUpdateRecord(g Grants) sink.Record {
	return sink.Record{
		"event":                      "cookifi-consent-update",
		"cookie_consent_marketing":   grantString(g.Marketing),
		"cookie_consent_statistics":  grantString(g.Analytics),
		"cookie_consent_preferences": grantString(g.Preferences),
	}
}

// Signal is the consent-signal command surface of the downstream tag
// manager. Commands are pushed straight to the sink as command records;
// they are not analytics events and never pass through the gate.
type Signal struct {
	sink sink.Sink
}

// NewSignal creates a signal writer bound to a sink.
func NewSignal(s sink.Sink) *Signal {
	return &Signal{sink: s}
}

func (s *Signal) push(args ...any) {
	s.sink.Push(sink.Record{"command": args})
}

// Default sets every storage grant to denied except security_storage and
// hands the downstream consumer its bounded wait for the update command.
func (s *Signal) Default(waitMS int) {
	s.push("consent", "default", map[string]any{
		"ad_personalization":      "denied",
		"ad_storage":              "denied",
		"ad_user_data":            "denied",
		"analytics_storage":       "denied",
		"functionality_storage":   "denied",
		"personalization_storage": "denied",
		"security_storage":        "granted",
		"wait_for_update":         waitMS,
	})
}

// Update propagates resolved grants using the fixed mapping: marketing
// drives the three ad signals, analytics drives analytics_storage,
// preferences drives functionality and personalization storage.
func (s *Signal) Update(g Grants) {
	s.push("consent", "update", map[string]any{
		"analytics_storage":       grantString(g.Analytics),
		"ad_storage":              grantString(g.Marketing),
		"ad_user_data":            grantString(g.Marketing),
		"ad_personalization":      grantString(g.Marketing),
		"personalization_storage": grantString(g.Preferences),
		"functionality_storage":   grantString(g.Preferences),
		"security_storage":        "granted",
	})
}

// Set writes one of the boolean ad-data flags (ads_data_redaction,
// url_passthrough).
func (s *Signal) Set(key string, value bool) {
	s.push("set", key, value)
}
