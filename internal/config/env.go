package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "SECRETSHARE_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnvFiles loads .env from the working directory when present, then
// each named file, which must exist. Variables already set win.
func LoadEnvFiles(files ...string) error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from SECRETSHARE_* variables.
//
//	SECRETSHARE_DB_DRIVER, SECRETSHARE_DB_DSN
//	SECRETSHARE_LISTEN_ADDR, SECRETSHARE_API_KEYS (comma separated)
//	SECRETSHARE_WEBHOOK_URL (selects the webhook transport), SECRETSHARE_WEBHOOK_TOKEN
//	SECRETSHARE_BOT_USERNAME, SECRETSHARE_SESSIONS_PATH
//	SECRETSHARE_LOG_LEVEL, SECRETSHARE_LOG_FORMAT
func (c *Config) ApplyEnv(lookup LookupFunc) {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("DB_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := get("DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := get("LISTEN_ADDR"); ok {
		c.Server.Address = v
	}
	if v, ok := get("API_KEYS"); ok {
		c.Server.APIKeys = splitList(v)
	}
	if v, ok := get("WEBHOOK_URL"); ok {
		c.Transport.Kind = "webhook"
		c.Transport.Webhook.URL = v
	}
	if v, ok := get("WEBHOOK_TOKEN"); ok {
		c.Transport.Webhook.Token = v
	}
	if v, ok := get("BOT_USERNAME"); ok {
		c.Bot.Username = strings.TrimPrefix(v, "@")
	}
	if v, ok := get("SESSIONS_PATH"); ok {
		c.Sessions.Backend = "pebble"
		c.Sessions.Path = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Logging.Format = strings.ToLower(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
