package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	facet "github.com/openfacet/facet"
)

var rootCmd = &cobra.Command{
	Use:   "facetctl",
	Short: "Administer a facet attribute catalog",
	Long: `facetctl administers a facet deployment: schema migrations,
definition documents, snapshot exports, and health checks.

Examples:

  facetctl init-db
  facetctl apply -f definitions.yaml
  facetctl load -f patients.csv --entity-type clinic.patient
  facetctl convert -f schema.json -o definitions.yaml
  facetctl export --dry-run
  facetctl health
`,
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

// Register subcommands
func init() {
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadEnv pulls a local .env file into the environment when present.
func loadEnv() {
	if err := godotenv.Load(); err != nil {
		zap.S().Debug("no .env file found, continuing")
	}
}

// databaseDSN assembles the connection string from DATABASE_URL, falling
// back to the discrete DB_* variables.
func databaseDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return buildConnString(
		getenvDefault("DB_HOST", "localhost"),
		getenvDefaultInt("DB_PORT", 5432),
		getenvDefault("DB_NAME", "facet"),
		getenvDefault("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		getenvDefault("DB_SSL_MODE", "disable"),
	)
}

func buildConnString(host string, port int, database, user, password, sslMode string) string {
	var userInfo *url.Userinfo
	if password != "" {
		userInfo = url.UserPassword(user, password)
	} else {
		userInfo = url.User(user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + database,
	}

	q := url.Values{}
	if sslMode != "" {
		q.Set("sslmode", sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// engineConfigFromEnv builds the engine config the same way the server
// does, from DB_* and the table name variables.
func engineConfigFromEnv() *facet.Config {
	config := facet.DefaultConfig()
	config.Database.Host = getenvDefault("DB_HOST", "localhost")
	config.Database.Port = getenvDefaultInt("DB_PORT", 5432)
	config.Database.Database = getenvDefault("DB_NAME", "facet")
	config.Database.Username = getenvDefault("DB_USER", "postgres")
	config.Database.Password = os.Getenv("DB_PASSWORD")
	config.Database.SSLMode = getenvDefault("DB_SSL_MODE", "disable")
	config.Database.TableNames = facet.TableNames{
		Attributes:      getenvDefault("ATTRIBUTE_TABLE", "eav_attribute"),
		Values:          getenvDefault("VALUE_TABLE", "eav_value"),
		EnumValues:      getenvDefault("ENUM_VALUE_TABLE", "eav_enum_value"),
		EnumGroups:      getenvDefault("ENUM_GROUP_TABLE", "eav_enum_group"),
		EnumGroupValues: getenvDefault("ENUM_GROUP_VALUES_TABLE", "eav_enum_group_values"),
		ChangeLog:       getenvDefault("CHANGE_LOG_TABLE", "eav_change_log"),
	}
	return config
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getenvDefaultInt64(key string, def int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}
