package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openfacet/facet"
)

// PostgresHealthCheck connects and pings a Postgres instance using a DSN.
// timeout may be 0 to use a sensible default (5s).
func PostgresHealthCheck(ctx context.Context, dsn string, timeout time.Duration) error {
	if dsn == "" {
		return fmt.Errorf("empty dsn")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres simple query failed: %w", err)
	}

	return nil
}

// VerifyEngineTables checks that every configured engine table exists in
// the connected database's current schema.
func VerifyEngineTables(ctx context.Context, conn dbConn, tables facet.TableNames) error {
	required := []string{
		tables.Attributes,
		tables.Values,
		tables.EnumValues,
		tables.EnumGroups,
		tables.EnumGroupValues,
	}
	if tables.ChangeLog != "" {
		required = append(required, tables.ChangeLog)
	}

	rows, err := conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return fmt.Errorf("query database tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tables: %w", err)
	}

	for _, name := range required {
		if !present[name] {
			return facet.NewConfigurationError(fmt.Sprintf("table %q does not exist; run the schema migrations", name))
		}
	}
	return nil
}

// S3EndpointCheck pings the configured S3 endpoint over HTTP. Best-effort
// and non-authoritative: it validates DNS/TLS reachability only, since
// AWS proper answers anonymous requests with 403.
func S3EndpointCheck(ctx context.Context, endpoint string, timeout time.Duration) error {
	if endpoint == "" {
		return fmt.Errorf("s3 endpoint not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("s3 health request build failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("s3 endpoint reachable but returned auth error: %d", resp.StatusCode)
	}
	return fmt.Errorf("s3 endpoint returned unexpected status: %d", resp.StatusCode)
}
