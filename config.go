package facet

import (
	"time"
)

// Config carries engine settings.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`

	// Resolver substitutes storage models per role. Nil selects the
	// static resolver built from Database.TableNames.
	Resolver ModelResolver `json:"-"`
}

// DatabaseConfig contains Postgres connection settings.
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Database       string        `json:"database"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	SSLMode        string        `json:"sslMode"`
	MaxConnections int           `json:"maxConnections"`
	Timeout        time.Duration `json:"timeout"`
	TableNames     TableNames    `json:"tableNames"`
}

// TableNames locates the engine's own tables. The four model tables feed
// the static resolver; the membership and change-log tables are
// engine-internal.
type TableNames struct {
	Attributes      string `json:"attributes"`
	Values          string `json:"values"`
	EnumValues      string `json:"enumValues"`
	EnumGroups      string `json:"enumGroups"`
	EnumGroupValues string `json:"enumGroupValues"`
	ChangeLog       string `json:"changeLog"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "facet",
			Username:       "postgres",
			SSLMode:        "disable",
			MaxConnections: 25,
			Timeout:        30 * time.Second,
			TableNames: TableNames{
				Attributes:      "eav_attribute",
				Values:          "eav_value",
				EnumValues:      "eav_enum_value",
				EnumGroups:      "eav_enum_group",
				EnumGroupValues: "eav_enum_group_values",
				ChangeLog:       "eav_change_log",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return &ConfigError{Field: "database.host", Message: "is required"}
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return &ConfigError{Field: "database.port", Message: "must be a valid TCP port"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	// ChangeLog is deliberately absent: an empty name disables the
	// change feed rather than failing validation.
	t := c.Database.TableNames
	named := map[string]string{
		"database.tableNames.attributes":      t.Attributes,
		"database.tableNames.values":          t.Values,
		"database.tableNames.enumValues":      t.EnumValues,
		"database.tableNames.enumGroups":      t.EnumGroups,
		"database.tableNames.enumGroupValues": t.EnumGroupValues,
	}
	for field, name := range named {
		if name == "" {
			return &ConfigError{Field: field, Message: "is required"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
