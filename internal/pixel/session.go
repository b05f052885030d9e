package pixel

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/pixel-relay/internal/pkg/logger"
	"github.com/ignite/pixel-relay/internal/sink"
)

// consentSource is the armed consent-resolution path. Exactly one variant
// is chosen per session at creation, so a session can never resolve through
// both the cookie and the privacy subscription.
type consentSource interface {
	sourceName() string
}

// cookieConsent marks a checkout session: consent was read synchronously
// from the signed cookie at session start.
type cookieConsent struct{}

func (cookieConsent) sourceName() string { return "cookie" }

// privacyConsent marks a storefront session: consent arrives through the
// customer-privacy subscription.
type privacyConsent struct{}

func (privacyConsent) sourceName() string { return "privacy_subscription" }

// SessionConfig carries the per-session settings derived from relay
// configuration.
type SessionConfig struct {
	Options          Options
	WaitForUpdateMS  int
	AdsDataRedaction bool
	URLPassthrough   bool
}

// Session is the per-page-load pipeline: normalizer, consent gate, replay
// buffer and sink reference, with no ambient shared state. Handlers are
// serialized by the session mutex, preserving the single-producer FIFO
// guarantee toward the sink.
type Session struct {
	ID string

	mu         sync.Mutex
	page       PageContext
	checkout   bool
	source     consentSource
	norm       *Normalizer
	dispatcher *Dispatcher
	signal     *Signal
	lastSeen   time.Time
}

// NewSession builds the session pipeline and runs the startup sequence:
// consent-mode defaults, ad-data flags, consent-path arming (cookie read on
// checkout pages) and the unconditional initial page record.
func NewSession(init Init, cfg SessionConfig, out sink.Sink) *Session {
	id := init.ID
	if id == "" {
		id = uuid.NewString()
	}

	opt := cfg.Options
	if opt.Affiliation == "" && init.Data.Shop != nil {
		opt.Affiliation = init.Data.Shop.Name
	}

	s := &Session{
		ID: id,
		page: PageContext{
			Location: init.Context.Document.Location.Href,
			Referrer: init.Context.Document.Referrer,
			Title:    init.Context.Document.Title,
		},
		norm:       NewNormalizer(opt),
		dispatcher: NewDispatcher(out),
		signal:     NewSignal(out),
		lastSeen:   time.Now(),
	}
	s.checkout = strings.Contains(s.page.Location, "/checkouts/")

	s.signal.Default(cfg.WaitForUpdateMS)
	s.signal.Set("ads_data_redaction", cfg.AdsDataRedaction)
	s.signal.Set("url_passthrough", cfg.URLPassthrough)

	if s.checkout {
		s.source = cookieConsent{}
		grants, ok := ParseConsentCookie(init.ConsentCookie)
		if !ok {
			// Absent or malformed cookie: all grants denied, never fatal.
			logger.Warn("consent cookie absent or unparsable, denying all grants",
				"session", s.ID)
		}
		s.applyConsent(grants)
	} else {
		s.source = privacyConsent{}
	}

	s.dispatcher.Bypass(s.initialRecord(init))

	logger.Info("session created",
		"session", s.ID,
		"checkout", s.checkout,
		"consent_source", s.source.sourceName(),
	)
	return s
}

// initialRecord is the synthetic initial-view record: page context plus
// whatever customer identity fields resolved. An anonymous visitor yields
// page fields only.
func (s *Session) initialRecord(init Init) sink.Record {
	rec := sink.Record{
		"page_location": s.page.Location,
		"page_referrer": s.page.Referrer,
		"page_title":    s.page.Title,
	}
	if c := init.Data.Customer; c != nil {
		setIfPresent(rec, "customer_id", c.ID)
		setIfPresent(rec, "customer_email", c.Email)
		setIfPresent(rec, "customer_first_name", c.FirstName)
		setIfPresent(rec, "customer_last_name", c.LastName)
		setIfPresent(rec, "customer_phone", c.Phone)
		if c.OrdersCount > 0 {
			rec["customer_order_count"] = c.OrdersCount
		}
	}
	return rec
}

// HandleEvent normalizes one inbound event and dispatches its records
// through the gate. Unknown or disabled events are dropped silently; a
// handler never fails the caller.
func (s *Session) HandleEvent(env *Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	for _, rec := range s.norm.Normalize(env, s.checkout) {
		s.dispatcher.Dispatch(rec)
	}
}

// HandlePrivacy resolves the gate from a customer-privacy payload. Only
// storefront sessions arm this path; on checkout sessions the payload is
// ignored. A repeated invocation re-applies the consent-update side
// effects but finds an empty buffer, so nothing is replayed twice.
func (s *Session) HandlePrivacy(p PrivacyPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	if _, ok := s.source.(privacyConsent); !ok {
		logger.Warn("privacy event on cookie-consent session ignored", "session", s.ID)
		return
	}
	s.applyConsent(GrantsFromPrivacy(p.CustomerPrivacy))
}

// applyConsent runs the resolution sequence: propagate grants to the
// consent-signal surface, emit the consent-update record ahead of any
// replay, then drain the buffer and flip the gate.
func (s *Session) applyConsent(g Grants) {
	s.signal.Update(g)
	s.dispatcher.Bypass(ConsentUpdateRecord(g))
	buffered := s.dispatcher.BufferLen()
	s.dispatcher.Resolve(g)

	logger.Info("consent resolved",
		"session", s.ID,
		"analytics", g.Analytics,
		"marketing", g.Marketing,
		"preferences", g.Preferences,
		"replayed", buffered,
	)
}

// Checkout reports whether this session is a checkout page load.
func (s *Session) Checkout() bool { return s.checkout }

// Resolved reports whether consent has been resolved.
func (s *Session) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Resolved()
}

// BufferLen reports how many records await consent resolution.
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.BufferLen()
}

// LastSeen reports when the session last handled a request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
