// Package config reads service settings from the environment, falling back
// to SSM Parameter Store for secrets.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"realestate-bot/internal/integrations/paramstore"
)

type Config struct {
	Port int

	EvolutionURL      string
	EvolutionKey      string
	EvolutionInstance string

	OpenAIKey             string
	OpenAIBaseURL         string
	OpenAIModel           string
	TranscriptionModel    string
	TranscriptionLanguage string

	SheetsID           string
	ServiceAccountJSON string
	SheetsRange        string

	WebURL        string
	AgencyName    string
	WebhookSecret string

	DebounceWait  time.Duration
	HistoryLimit  int
	HistoryIdle   time.Duration
	ListingTTL    time.Duration
	PhotoInterval time.Duration
	TurnTimeout   time.Duration

	ParamPrefix  string
	TurnLogTable string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// secretParams maps secret env vars to their parameter names under the prefix.
var secretParams = map[string]string{
	"EVOLUTION_API_KEY":           "evolution-api-key",
	"OPENAI_API_KEY":              "openai-api-key",
	"GOOGLE_SERVICE_ACCOUNT_JSON": "google-service-account",
	"WEBHOOK_SECRET":              "webhook-secret",
}

type loader struct {
	ctx     context.Context
	lookup  LookupFunc
	secrets paramstore.Getter
	missing []string
	errs    []error
}

// Load builds a Config. secrets may be nil, in which case secret values must
// come from the environment.
func Load(ctx context.Context, lookup LookupFunc, secrets paramstore.Getter) (Config, error) {
	l := &loader{ctx: ctx, lookup: lookup, secrets: secrets}

	cfg := Config{
		Port: l.int("PORT", 3000),

		EvolutionURL:      strings.TrimRight(l.required("EVOLUTION_API_URL"), "/"),
		EvolutionKey:      l.secret("EVOLUTION_API_KEY", true),
		EvolutionInstance: l.required("EVOLUTION_INSTANCE"),

		OpenAIKey:             l.secret("OPENAI_API_KEY", true),
		OpenAIBaseURL:         l.str("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:           l.str("OPENAI_MODEL", "gpt-4o-mini"),
		TranscriptionModel:    l.str("TRANSCRIPTION_MODEL", "whisper-1"),
		TranscriptionLanguage: l.str("TRANSCRIPTION_LANGUAGE", "es"),

		SheetsID:           l.required("GOOGLE_SHEETS_ID"),
		ServiceAccountJSON: l.secret("GOOGLE_SERVICE_ACCOUNT_JSON", true),
		SheetsRange:        l.str("SHEETS_RANGE", "A2:K"),

		WebURL:        l.str("WEB_URL", "http://www.puyella.com.ar/index.php"),
		AgencyName:    l.str("AGENCY_NAME", "Puyella Inmobiliaria"),
		WebhookSecret: l.secret("WEBHOOK_SECRET", false),

		DebounceWait:  time.Duration(l.int("DEBOUNCE_WAIT_SECONDS", 15)) * time.Second,
		HistoryLimit:  l.int("HISTORY_LIMIT", 20),
		HistoryIdle:   time.Duration(l.int("HISTORY_IDLE_MINUTES", 30)) * time.Minute,
		ListingTTL:    time.Duration(l.int("LISTING_CACHE_MINUTES", 5)) * time.Minute,
		PhotoInterval: time.Duration(l.int("PHOTO_INTERVAL_MS", 500)) * time.Millisecond,
		TurnTimeout:   time.Duration(l.int("TURN_TIMEOUT_SECONDS", 90)) * time.Second,

		ParamPrefix:  l.str("PARAM_PREFIX", ""),
		TurnLogTable: l.str("TURN_LOG_TABLE", ""),
	}

	if len(l.errs) > 0 {
		return Config{}, l.errs[0]
	}
	if len(l.missing) > 0 {
		return Config{}, fmt.Errorf("config: required environment variable(s) not set: %s", strings.Join(l.missing, ", "))
	}
	return cfg, nil
}

func (l *loader) get(key string) string {
	v, ok := l.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (l *loader) str(key, def string) string {
	if v := l.get(key); v != "" {
		return v
	}
	return def
}

func (l *loader) required(key string) string {
	v := l.get(key)
	if v == "" {
		l.missing = append(l.missing, key)
	}
	return v
}

// int keeps def for missing, malformed or non-positive values.
func (l *loader) int(key string, def int) int {
	v := l.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// secret prefers the environment, then the parameter store when one is configured.
func (l *loader) secret(key string, required bool) string {
	if v := l.get(key); v != "" {
		return v
	}
	if l.secrets != nil {
		v, err := paramstore.Secret(l.ctx, l.secrets, secretParams[key])
		if err == nil {
			return v
		}
		if required {
			l.errs = append(l.errs, fmt.Errorf("config: resolve %s: %w", key, err))
		}
		return ""
	}
	if required {
		l.missing = append(l.missing, key)
	}
	return ""
}
