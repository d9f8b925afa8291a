package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// ExportConfig configures the snapshot export pass.
type ExportConfig struct {
	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDB       string
	PGSSLMode  string
	PGUseIAM   bool

	ChangeLogTable string
	ValueTable     string
	AttributeTable string
	EnumValueTable string

	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string

	DuckDBPath     string
	DuckDBMemoryMB int
	DuckDBThreads  int

	// Flush thresholds: flush when either the unflushed row count or the
	// age of the oldest unflushed row crosses its limit.
	MinRecords int64
	MaxAgeMs   int64
}

// SnapshotExporter drives DuckDB to pull changed rows out of Postgres and
// land them as Parquet on S3.
type SnapshotExporter struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewSnapshotExporter opens a DuckDB connection and configures pragmas
// and extensions.
func NewSnapshotExporter(ctx context.Context, cfg ExportConfig, s3AccessKey, s3Secret string, logger *zap.Logger) (*SnapshotExporter, error) {
	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pragmas := []string{}
	if cfg.DuckDBMemoryMB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%dMB';", cfg.DuckDBMemoryMB))
	}
	if cfg.DuckDBThreads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d;", cfg.DuckDBThreads))
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx2, p); err != nil {
			logger.Sugar().Warnw("duckdb pragma failed", "pragma", p, "err", err)
		}
	}

	exts := []string{"httpfs", "parquet", "postgres_scanner"}
	for _, e := range exts {
		if _, err := db.ExecContext(ctx2, "INSTALL "+e+";"); err != nil {
			logger.Sugar().Warnw("duckdb install extension failed", "ext", e, "err", err)
			continue
		}
		if _, err := db.ExecContext(ctx2, "LOAD "+e+";"); err != nil {
			logger.Sugar().Warnw("duckdb load extension failed", "ext", e, "err", err)
		}
	}

	if s3AccessKey != "" {
		if _, err := db.ExecContext(ctx2, fmt.Sprintf("SET s3_access_key_id='%s';", s3AccessKey)); err != nil {
			logger.Sugar().Warnw("duckdb set s3_access_key_id failed", "err", err)
		}
	}
	if s3Secret != "" {
		if _, err := db.ExecContext(ctx2, fmt.Sprintf("SET s3_secret_access_key='%s';", s3Secret)); err != nil {
			logger.Sugar().Warnw("duckdb set s3_secret_access_key failed", "err", err)
		}
	}
	if cfg.S3Region != "" {
		if _, err := db.ExecContext(ctx2, fmt.Sprintf("SET s3_region='%s';", cfg.S3Region)); err != nil {
			logger.Sugar().Warnw("duckdb set s3_region failed", "err", err)
		}
	}
	if cfg.S3Endpoint != "" {
		ep := strings.TrimPrefix(cfg.S3Endpoint, "http://")
		if _, err := db.ExecContext(ctx2, fmt.Sprintf("SET s3_endpoint='%s';", ep)); err != nil {
			logger.Sugar().Warnw("duckdb set s3_endpoint failed", "err", err)
		}
		if _, err := db.ExecContext(ctx2, "SET s3_use_ssl=false;"); err != nil {
			logger.Sugar().Warnw("duckdb set s3_use_ssl failed", "err", err)
		}
		if _, err := db.ExecContext(ctx2, "SET s3_url_style='path';"); err != nil {
			logger.Sugar().Warnw("duckdb set s3_url_style failed", "err", err)
		}
	}

	return &SnapshotExporter{DB: db, Logger: logger}, nil
}

// escapeSQLLiteral doubles single quotes for embedding in DuckDB SQL.
func escapeSQLLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// buildSnapshotSQL renders the export statement: every unflushed change
// of one entity type up to the snapshot watermark, joined to its current
// value row and attribute definition, one Parquet row per changed cell.
// Cells whose value row is gone (cleared or entity deleted) export with
// null value columns and a deleted_ts.
func buildSnapshotSQL(cfg ExportConfig, pgConnStr, s3TmpPath, entityType string, snapshotTS int64) string {
	pgEsc := escapeSQLLiteral(pgConnStr)
	s3Esc := escapeSQLLiteral(s3TmpPath)
	typeEsc := escapeSQLLiteral(entityType)

	return fmt.Sprintf(`COPY (
SELECT
  cl.entity_ct,
  cl.entity_id,
  cl.attribute_id,
  a.slug,
  a.datatype,
  v.value_text,
  v.value_float,
  v.value_date,
  v.value_bool,
  v.value_object_ct,
  v.value_object_id,
  ev.value AS value_enum,
  cl.changed_at AS ver_ts,
  cl.deleted_at AS deleted_ts
FROM postgres_scan('%s', 'public', '%s') cl
LEFT JOIN postgres_scan('%s', 'public', '%s') v
  ON v.entity_ct = cl.entity_ct AND v.entity_id = cl.entity_id AND v.attribute_id = cl.attribute_id
LEFT JOIN postgres_scan('%s', 'public', '%s') a
  ON a.id = cl.attribute_id
LEFT JOIN postgres_scan('%s', 'public', '%s') ev
  ON ev.id = v.value_enum_id
WHERE cl.entity_ct = '%s' AND cl.flushed_at = 0 AND cl.changed_at <= %d
) TO '%s' (FORMAT PARQUET, COMPRESSION 'ZSTD');`,
		pgEsc, escapeSQLLiteral(cfg.ChangeLogTable),
		pgEsc, escapeSQLLiteral(cfg.ValueTable),
		pgEsc, escapeSQLLiteral(cfg.AttributeTable),
		pgEsc, escapeSQLLiteral(cfg.EnumValueTable),
		typeEsc, snapshotTS, s3Esc,
	)
}

// ExportSnapshotToTmp runs the COPY into the temporary S3 object.
// s3TmpPath looks like 's3://bucket/prefix/delta/<type>/_tmp/<uuid>.parquet'.
func (e *SnapshotExporter) ExportSnapshotToTmp(ctx context.Context, cfg ExportConfig, pgConnStr, s3TmpPath, entityType string, snapshotTS int64) error {
	query := buildSnapshotSQL(cfg, pgConnStr, s3TmpPath, entityType, snapshotTS)
	e.Logger.Sugar().Debugw("duckdb export sql", "entity_ct", entityType, "snapshot_ts", snapshotTS)

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	if _, err := e.DB.ExecContext(ctx2, query); err != nil {
		return fmt.Errorf("duckdb copy exec: %w", err)
	}
	return nil
}
