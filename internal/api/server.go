package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/pixel-relay/internal/config"
	"github.com/ignite/pixel-relay/internal/pixel"
	"github.com/ignite/pixel-relay/internal/pkg/logger"
	"github.com/ignite/pixel-relay/internal/sink"
)

// Server is the beacon-facing HTTP surface of the relay.
type Server struct {
	cfg      *config.Config
	sessions *Registry
	redis    *redis.Client
	snippet  string
}

// NewServer builds the server. redisClient may be nil when the memory sink
// backend is configured.
func NewServer(cfg *config.Config, redisClient *redis.Client) (*Server, error) {
	if cfg.Sink.Backend == "redis" && redisClient == nil {
		return nil, fmt.Errorf("redis sink backend configured without a redis client")
	}

	snippet, err := pixel.RenderBootstrap(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		sessions: NewRegistry(time.Duration(cfg.Sessions.MaxIdleMinutes) * time.Minute),
		redis:    redisClient,
		snippet:  snippet,
	}, nil
}

// Sessions exposes the registry, used by tests and housekeeping.
func (s *Server) Sessions() *Registry { return s.sessions }

// Router assembles the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Storefront beacons post cross-origin from the shop domain.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/snippet", s.handleSnippet)

	r.Route("/pixel/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/events", s.handleEvents)
			r.Post("/privacy", s.handlePrivacy)
			r.Get("/datalayer", s.handleDataLayer)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.snippet))
}

// sessionSink builds the outbound queue for one session.
func (s *Server) sessionSink(sessionID string) (sink.Sink, *sink.Memory) {
	if s.cfg.Sink.Backend == "redis" {
		key := fmt.Sprintf("%s:%s:%s", s.cfg.Sink.KeyPrefix, s.cfg.Container.ID, sessionID)
		return sink.NewRedisQueue(s.redis, key), nil
	}
	mem := sink.NewMemory()
	return mem, mem
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var init pixel.Init
	if err := json.NewDecoder(r.Body).Decode(&init); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session payload")
		return
	}

	// The beacon may forward the consent cookie in the payload; a browser
	// hitting the relay on the shop domain sends it as a real cookie.
	if init.ConsentCookie == "" {
		if c, err := r.Cookie(s.cfg.Consent.CookieName); err == nil {
			init.ConsentCookie = c.Value
		}
	}

	// Assign the id up front so the sink key and the session agree on it.
	if init.ID == "" {
		init.ID = uuid.NewString()
	} else if existing, ok := s.sessions.Get(init.ID); ok {
		writeJSON(w, http.StatusOK, sessionResponse(existing))
		return
	}

	out, mem := s.sessionSink(init.ID)
	session := pixel.NewSession(init, pixel.SessionConfig{
		Options:          pixel.OptionsFromConfig(s.cfg),
		WaitForUpdateMS:  s.cfg.Consent.WaitForUpdateMS,
		AdsDataRedaction: s.cfg.Consent.AdsDataRedactionOn(),
		URLPassthrough:   s.cfg.Consent.URLPassthroughOn(),
	}, out)
	session = s.sessions.Put(session, mem)
	s.sessions.Prune()

	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

func sessionResponse(s *pixel.Session) map[string]any {
	return map[string]any{
		"id":       s.ID,
		"checkout": s.Checkout(),
		"resolved": s.Resolved(),
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	body := json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	// Accept a single envelope or a batch array.
	var batch []pixel.Envelope
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &batch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event batch")
			return
		}
	} else {
		var env pixel.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event payload")
			return
		}
		batch = append(batch, env)
	}

	for i := range batch {
		session.HandleEvent(&batch[i])
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(batch)})
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var payload pixel.PrivacyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid privacy payload")
		return
	}

	session.HandlePrivacy(payload)
	writeJSON(w, http.StatusAccepted, map[string]any{"resolved": session.Resolved()})
}

func (s *Server) handleDataLayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := s.sessions.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	records, ok := s.sessions.Records(id)
	if !ok {
		writeError(w, http.StatusConflict, "data layer inspection requires the memory sink backend")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
