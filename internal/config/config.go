package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the relay.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Container   ContainerConfig   `yaml:"container"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Consent     ConsentConfig     `yaml:"consent"`
	Store       StoreConfig       `yaml:"store"`
	Identifiers IdentifierConfig  `yaml:"identifiers"`
	Remarketing RemarketingConfig `yaml:"remarketing"`
	Sink        SinkConfig        `yaml:"sink"`
	CORS        CORSConfig        `yaml:"cors"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Developer   DeveloperConfig   `yaml:"developer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// ContainerConfig identifies the downstream tag-management container.
type ContainerConfig struct {
	ID string `yaml:"id"`
}

// TrackingConfig holds per-event enable flags. Unset flags default to
// enabled, so a config file only needs to list the events it turns off.
type TrackingConfig struct {
	PageViews       *bool `yaml:"page_views"`
	Clicks          *bool `yaml:"clicks"`
	Search          *bool `yaml:"search"`
	FormSubmit      *bool `yaml:"form_submit"`
	ViewItemList    *bool `yaml:"view_item_list"`
	ViewItem        *bool `yaml:"view_item"`
	AddToCart       *bool `yaml:"add_to_cart"`
	ViewCart        *bool `yaml:"view_cart"`
	RemoveFromCart  *bool `yaml:"remove_from_cart"`
	BeginCheckout   *bool `yaml:"begin_checkout"`
	AddShippingInfo *bool `yaml:"add_shipping_info"`
	AddPaymentInfo  *bool `yaml:"add_payment_info"`
	Purchase        *bool `yaml:"purchase"`
}

// TrackFlags is TrackingConfig with the defaults applied.
type TrackFlags struct {
	PageViews       bool
	Clicks          bool
	Search          bool
	FormSubmit      bool
	ViewItemList    bool
	ViewItem        bool
	AddToCart       bool
	ViewCart        bool
	RemoveFromCart  bool
	BeginCheckout   bool
	AddShippingInfo bool
	AddPaymentInfo  bool
	Purchase        bool
}

func on(v *bool) bool {
	return v == nil || *v
}

// Flags resolves the per-event enable flags, defaulting unset ones to true.
func (t TrackingConfig) Flags() TrackFlags {
	return TrackFlags{
		PageViews:       on(t.PageViews),
		Clicks:          on(t.Clicks),
		Search:          on(t.Search),
		FormSubmit:      on(t.FormSubmit),
		ViewItemList:    on(t.ViewItemList),
		ViewItem:        on(t.ViewItem),
		AddToCart:       on(t.AddToCart),
		ViewCart:        on(t.ViewCart),
		RemoveFromCart:  on(t.RemoveFromCart),
		BeginCheckout:   on(t.BeginCheckout),
		AddShippingInfo: on(t.AddShippingInfo),
		AddPaymentInfo:  on(t.AddPaymentInfo),
		Purchase:        on(t.Purchase),
	}
}

// ConsentConfig holds consent-mode settings passed to the downstream
// tag manager. WaitForUpdateMS is a budget for the downstream consumer;
// the relay itself never waits on it.
type ConsentConfig struct {
	WaitForUpdateMS  int    `yaml:"wait_for_update_ms"`
	AdsDataRedaction *bool  `yaml:"ads_data_redaction"`
	URLPassthrough   *bool  `yaml:"url_passthrough"`
	CookieName       string `yaml:"cookie_name"`
}

// AdsDataRedactionOn resolves the ads_data_redaction flag (default true).
func (c ConsentConfig) AdsDataRedactionOn() bool { return on(c.AdsDataRedaction) }

// URLPassthroughOn resolves the url_passthrough flag (default true).
func (c ConsentConfig) URLPassthroughOn() bool { return on(c.URLPassthrough) }

// StoreConfig holds storefront metadata stamped onto every item payload.
type StoreConfig struct {
	Affiliation string `yaml:"affiliation"`
}

// IdentifierConfig selects how product identifiers are encoded.
// Mode is one of "composite", "variant", "product_variant", "sku".
type IdentifierConfig struct {
	Mode    string `yaml:"mode"`
	Prefix  string `yaml:"prefix"`
	Country string `yaml:"country"`
}

// RemarketingConfig holds per-vendor remarketing fragment flags.
// All vendors default to disabled.
type RemarketingConfig struct {
	GoogleAds bool `yaml:"google_ads"`
	Meta      bool `yaml:"meta"`
	Criteo    bool `yaml:"criteo"`
}

// SinkConfig selects the outbound data-layer queue backend.
type SinkConfig struct {
	Backend       string `yaml:"backend"` // "memory" or "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// CORSConfig holds allowed origins for storefront beacons.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionsConfig holds session registry housekeeping settings.
type SessionsConfig struct {
	MaxIdleMinutes int `yaml:"max_idle_minutes"`
}

// DeveloperConfig holds diagnostics settings.
type DeveloperConfig struct {
	Diagnostics bool `yaml:"diagnostics"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Consent.WaitForUpdateMS == 0 {
		cfg.Consent.WaitForUpdateMS = 500
	}
	if cfg.Consent.CookieName == "" {
		cfg.Consent.CookieName = "cookifi-consent"
	}
	if cfg.Identifiers.Mode == "" {
		cfg.Identifiers.Mode = "variant"
	}
	if cfg.Identifiers.Prefix == "" {
		cfg.Identifiers.Prefix = "shopify"
	}
	if cfg.Identifiers.Country == "" {
		cfg.Identifiers.Country = "US"
	}
	if cfg.Sink.Backend == "" {
		cfg.Sink.Backend = "memory"
	}
	if cfg.Sink.RedisAddr == "" {
		cfg.Sink.RedisAddr = "localhost:6379"
	}
	if cfg.Sink.KeyPrefix == "" {
		cfg.Sink.KeyPrefix = "datalayer"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Sessions.MaxIdleMinutes == 0 {
		cfg.Sessions.MaxIdleMinutes = 60
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Identifiers.Mode {
	case "composite", "variant", "product_variant", "sku":
	default:
		return fmt.Errorf("identifiers.mode %q is not one of composite, variant, product_variant, sku", c.Identifiers.Mode)
	}
	switch c.Sink.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sink.backend %q is not one of memory, redis", c.Sink.Backend)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in the container.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if id := os.Getenv("PIXEL_CONTAINER_ID"); id != "" {
		cfg.Container.ID = id
	}
	if addr := os.Getenv("PIXEL_REDIS_ADDR"); addr != "" {
		cfg.Sink.RedisAddr = addr
	}
	if pw := os.Getenv("PIXEL_REDIS_PASSWORD"); pw != "" {
		cfg.Sink.RedisPassword = pw
	}
	if backend := os.Getenv("PIXEL_SINK_BACKEND"); backend != "" {
		cfg.Sink.Backend = backend
	}
	if port := os.Getenv("PIXEL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if origins := os.Getenv("PIXEL_CORS_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	if diag := os.Getenv("PIXEL_DIAGNOSTICS"); diag != "" {
		cfg.Developer.Diagnostics = diag == "true" || diag == "1"
	}

	return cfg, nil
}
