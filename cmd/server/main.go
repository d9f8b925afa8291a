package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	facet "github.com/openfacet/facet"
	"github.com/openfacet/facet/factory"
)

// Server exposes the storage engine over HTTP.
type Server struct {
	engine facet.Engine
	ping   func(ctx context.Context) error
	mux    *http.ServeMux
}

// NewServer creates a new Server instance. ping reports database
// reachability for the health endpoint; nil disables the check.
func NewServer(engine facet.Engine, ping func(ctx context.Context) error) *Server {
	return &Server{
		engine: engine,
		ping:   ping,
		mux:    http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/v1/attributes", s.handleAttributes)
	s.mux.HandleFunc("/api/v1/attributes/", s.handleAttributeBySlug)
	s.mux.HandleFunc("/api/v1/enum-groups", s.handleEnumGroups)
	s.mux.HandleFunc("/api/v1/enum-groups/", s.handleEnumGroupByName)
	s.mux.HandleFunc("/api/v1/entities/", s.handleEntities)
	s.mux.HandleFunc("/api/v1/definitions", s.handleDefinitions)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.mux)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	// Database configuration from environment variables
	dbConfig := facet.DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvInt("DB_PORT", 5432),
		Database:       getEnv("DB_NAME", "facet"),
		Username:       getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", ""),
		SSLMode:        getEnv("DB_SSL_MODE", "disable"),
		MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 25),
		Timeout:        time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	// Table names configuration
	dbConfig.TableNames = facet.TableNames{
		Attributes:      getEnv("ATTRIBUTE_TABLE", "eav_attribute"),
		Values:          getEnv("VALUE_TABLE", "eav_value"),
		EnumValues:      getEnv("ENUM_VALUE_TABLE", "eav_enum_value"),
		EnumGroups:      getEnv("ENUM_GROUP_TABLE", "eav_enum_group"),
		EnumGroupValues: getEnv("ENUM_GROUP_VALUES_TABLE", "eav_enum_group_values"),
		ChangeLog:       getEnv("CHANGE_LOG_TABLE", "eav_change_log"),
	}

	// Create database connection pool
	pool, err := createDatabasePoolFromConfig(dbConfig)
	if err != nil {
		sugar.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	config := facet.DefaultConfig()
	config.Database = dbConfig

	engine, err := factory.NewEngineWithConfig(config, pool)
	if err != nil {
		sugar.Fatalf("failed to create engine: %v", err)
	}

	server := NewServer(engine, pool.Ping)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// createDatabasePoolFromConfig creates a PostgreSQL connection pool from config
func createDatabasePoolFromConfig(config facet.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
