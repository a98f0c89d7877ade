// Package config provides application configuration loaded from environment
// variables with defaults and validation, plus the event-specific group file
// (stall groups, organizer groups, stand locations, category routing) loaded
// from JSON. It centralizes settings such as server timeouts, logging, the
// state database path, the chat transport, and observability.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Canonical wizard option strings. The wizard only advances on one of these;
// anything else is answered with a reprompt.
const (
	CategoryCups     = "Becher"
	CategoryMoney    = "Geld"
	CategoryBeer     = "Bier"
	CategoryCocktail = "Cocktail"
	CategoryOther    = "Sonstiges"

	OptionMoneyCollect = "Geld Abholen"
	OptionMoneyChange  = "Wechselgeld"
	OptionMoneyFree    = "Freitext"

	OptionCupsCollect = "Dreckige Abholen"
	OptionCupsShot    = "Shotbecher"
	OptionCupsNormal  = "Normale Becher"
)

// RequestOptions are the category choices offered at the first wizard step.
var RequestOptions = []string{
	CategoryCups, CategoryMoney, CategoryBeer, CategoryCocktail, CategoryOther,
}

// MoneyOptions are the choices of the money sub-flow.
var MoneyOptions = []string{OptionMoneyCollect, OptionMoneyChange, OptionMoneyFree}

// CupOptions are the choices of the cups sub-flow.
var CupOptions = []string{OptionCupsCollect, OptionCupsShot, OptionCupsNormal}

// AmountOptions are suggested (not enforced) answers for the amount step.
var AmountOptions = []string{"0", "~10", "~20", "~50"}

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops API.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// MQTTConfig defines the connection to the dashboard broker. An empty Broker
// disables dashboard publishing entirely.
type MQTTConfig struct {
	Broker   string // MQTT_BROKER, e.g. "tcp://broker:1883"
	ClientID string // MQTT_CLIENT_ID, defaults to the hostname in main
	Username string // MQTT_USERNAME
	Password string // MQTT_PASSWORD
}

// TelegramConfig defines the chat transport and the two special chats.
type TelegramConfig struct {
	Token           string // TELEGRAM_TOKEN
	ChannelChatID   int64  // CHANNEL_CHAT_ID: updates channel for transition logs
	DeveloperChatID int64  // DEVELOPER_CHAT_ID: alert sink and developer auth
}

// Config holds all configuration values for the application.
type Config struct {
	// Ops HTTP server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	GinMode           string // debug|release|test
	APIBasePath       string

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// App
	DBPath     string // SQLite path for the persisted state blob
	GroupsPath string // JSON file with groups/locations/category routing

	// Channel/developer message pacing (token bucket)
	ChannelRPS   float64
	ChannelBurst int

	Telegram TelegramConfig
	CORS     CORSConfig
	OTEL     OTELConfig
	MQTT     MQTTConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath:     getenv("DB_PATH", "supplybot.db"),
		GroupsPath: getenv("GROUPS_PATH", "config/groups.json"),

		ChannelRPS:   getfloat("CHANNEL_RPS", 1.0),
		ChannelBurst: getint("CHANNEL_BURST", 5),

		Telegram: TelegramConfig{
			Token:           getenv("TELEGRAM_TOKEN", ""),
			ChannelChatID:   getint64("CHANNEL_CHAT_ID", 0),
			DeveloperChatID: getint64("DEVELOPER_CHAT_ID", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-supply-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		MQTT: MQTTConfig{
			Broker:   getenv("MQTT_BROKER", ""),
			ClientID: getenv("MQTT_CLIENT_ID", ""),
			Username: getenv("MQTT_USERNAME", ""),
			Password: getenv("MQTT_PASSWORD", ""),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.GroupsPath) == "" {
		return cfg, errors.New("GROUPS_PATH must not be empty")
	}
	if cfg.ChannelRPS < 0 {
		return cfg, errors.New("CHANNEL_RPS must be >= 0")
	}
	if cfg.ChannelBurst < 1 {
		return cfg, errors.New("CHANNEL_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Groups is the event-specific routing table: which stall and organizer
// groups exist, where each stall is located, and which organizer group is
// responsible for each request category.
type Groups struct {
	// Stalls are the groups users can pick during registration.
	Stalls []string `json:"groups"`
	// Orga are the organizer groups allowed to run ticket commands.
	Orga []string `json:"orga"`
	// Hidden are registerable groups not offered in the public listing.
	Hidden []string `json:"hidden"`
	// Locations maps a group name to its stand label used in ticket texts.
	Locations map[string]string `json:"mapping"`
	// Categories maps a request category to the organizer group tasked with
	// it. Categories missing here fall through to DefaultTasked.
	Categories map[string]string `json:"categories"`
	// DefaultTasked is the organizer group for uncategorized requests.
	DefaultTasked string `json:"default_tasked"`
}

// DefaultCategories is the routing table used when the groups file does not
// define one: money requests go to the finance group, beverage material to
// the BiMi group, everything else to the central organizers.
func DefaultCategories() map[string]string {
	return map[string]string{
		CategoryMoney:    "Finanz",
		CategoryBeer:     "BiMi",
		CategoryCocktail: "BiMi",
		CategoryCups:     "BiMi",
	}
}

// LoadGroups reads and validates the groups file.
func LoadGroups(path string) (Groups, error) {
	var g Groups
	raw, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("read groups file: %w", err)
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, fmt.Errorf("parse groups file %s: %w", path, err)
	}
	if g.DefaultTasked == "" {
		g.DefaultTasked = "Zentrale"
	}
	if g.Categories == nil {
		g.Categories = DefaultCategories()
	}
	if len(g.Stalls) == 0 {
		return g, fmt.Errorf("groups file %s: no stall groups defined", path)
	}
	if len(g.Orga) == 0 {
		return g, fmt.Errorf("groups file %s: no organizer groups defined", path)
	}
	return g, nil
}

// All returns every registerable group: stalls, organizers, and hidden ones.
func (g Groups) All() []string {
	out := make([]string, 0, len(g.Stalls)+len(g.Orga)+len(g.Hidden))
	out = append(out, g.Stalls...)
	out = append(out, g.Orga...)
	out = append(out, g.Hidden...)
	return out
}

// IsOrga reports whether name is an organizer group.
func (g Groups) IsOrga(name string) bool {
	for _, o := range g.Orga {
		if o == name {
			return true
		}
	}
	return false
}

// Canonical resolves a case-insensitive user-supplied group name to its
// canonical spelling. The second return is false when the name is unknown.
func (g Groups) Canonical(name string) (string, bool) {
	for _, n := range g.All() {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// Location returns the stand label for a group, falling back to the group
// name itself when no mapping entry exists.
func (g Groups) Location(group string) string {
	if loc, ok := g.Locations[group]; ok {
		return loc
	}
	return group
}

// Tasked returns the organizer group responsible for a request category.
func (g Groups) Tasked(category string) string {
	if tasked, ok := g.Categories[category]; ok {
		return tasked
	}
	return g.DefaultTasked
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
