package config

import (
	"fmt"
	"strings"
)

// Database drivers selected from DATABASE_URL.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Driver reports which store backs the configured URL.
func (c *DatabaseConfig) Driver() (string, error) {
	switch {
	case strings.HasPrefix(c.URL, "postgres://"), strings.HasPrefix(c.URL, "postgresql://"):
		return DriverPostgres, nil
	case strings.HasPrefix(c.URL, "sqlite:"):
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("DATABASE_URL must start with postgres://, postgresql:// or sqlite:")
	}
}

// SQLitePath returns the file path of a sqlite: URL.
// "sqlite://data/study.db" yields "data/study.db"; "sqlite::memory:" yields ":memory:".
func (c *DatabaseConfig) SQLitePath() string {
	path := strings.TrimPrefix(c.URL, "sqlite:")
	return strings.TrimPrefix(path, "//")
}

// APIKey binds an API key to the username recorded in audit events.
type APIKey struct {
	User  string
	Key   string
	Staff bool
}

// ParseAPIKey parses one API_KEYS entry in user:key or user:key:staff form.
func ParseAPIKey(entry string) (APIKey, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return APIKey{}, fmt.Errorf("API_KEYS entry %q must be user:key or user:key:staff", entry)
	}
	k := APIKey{User: parts[0], Key: parts[1]}
	if len(parts) == 3 {
		if parts[2] != "staff" {
			return APIKey{}, fmt.Errorf("API_KEYS entry %q has unknown role %q", entry, parts[2])
		}
		k.Staff = true
	}
	return k, nil
}

// ParsedAPIKeys returns the configured keys. Invalid entries are rejected by Validate.
func (c *SecurityConfig) ParsedAPIKeys() []APIKey {
	keys := make([]APIKey, 0, len(c.APIKeys))
	for _, entry := range c.APIKeys {
		if k, err := ParseAPIKey(entry); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}
