package export

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// generateIAMTokenFn is swapped out in tests.
var generateIAMTokenFn = func(ctx context.Context, endpoint, region string, creds aws.CredentialsProvider) (string, error) {
	return auth.GenerateDbConnectAuthToken(ctx, endpoint, region, creds)
}

// typeLockKey derives the advisory lock key for one entity type. Writers
// take a transaction-scoped lock on attribute ids; the flusher keys on the
// type name, so the two never contend.
func typeLockKey(entityType string) int64 {
	h := fnv.New64a()
	h.Write([]byte("flush/"))
	h.Write([]byte(entityType))
	return int64(h.Sum64())
}

// AcquireTypeLock takes a session advisory lock for one entity type so
// concurrent flusher runs do not export the same rows twice.
func AcquireTypeLock(ctx context.Context, db *sql.DB, entityType string) (bool, error) {
	var locked bool
	err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", typeLockKey(entityType)).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return locked, nil
}

// ReleaseTypeLock releases the session advisory lock taken by AcquireTypeLock.
func ReleaseTypeLock(ctx context.Context, db *sql.DB, entityType string) {
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", typeLockKey(entityType)); err != nil {
		zap.S().Warnw("release advisory lock failed", "entity_ct", entityType, "err", err)
	}
}

// ChangeLogStats reports the unflushed row count and the oldest unflushed
// change timestamp for one entity type.
func ChangeLogStats(ctx context.Context, db *sql.DB, table, entityType string) (count int64, oldest int64, err error) {
	q := fmt.Sprintf("SELECT COUNT(*), COALESCE(MIN(changed_at), 0) FROM %s WHERE entity_ct = $1 AND flushed_at = 0", table)
	if err := db.QueryRowContext(ctx, q, entityType).Scan(&count, &oldest); err != nil {
		return 0, 0, fmt.Errorf("query change log stats: %w", err)
	}
	return count, oldest, nil
}

// ShouldFlush applies the threshold rules to the stats: flush once the
// backlog is large enough or the oldest row is old enough.
func ShouldFlush(cfg ExportConfig, count, oldest, nowMs int64) bool {
	if count == 0 {
		return false
	}
	if cfg.MinRecords > 0 && count >= cfg.MinRecords {
		return true
	}
	if cfg.MaxAgeMs > 0 && oldest > 0 && nowMs-oldest >= cfg.MaxAgeMs {
		return true
	}
	return false
}

// MarkFlushed stamps every exported row with the flush timestamp. The
// snapshot watermark keeps rows changed after the export out of this pass.
func MarkFlushed(ctx context.Context, db *sql.DB, table, entityType string, snapshotTS, flushedAt int64) (int64, error) {
	q := fmt.Sprintf("UPDATE %s SET flushed_at = $1 WHERE entity_ct = $2 AND flushed_at = 0 AND changed_at <= $3", table)
	res, err := db.ExecContext(ctx, q, flushedAt, entityType, snapshotTS)
	if err != nil {
		return 0, fmt.Errorf("mark flushed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CopyTmpToFinal promotes the exported object from its _tmp key to the
// final key and removes the tmp object. Readers only list final keys, so
// a crashed export leaves garbage under _tmp but never a partial delta.
func CopyTmpToFinal(ctx context.Context, client *s3.Client, bucket, tmpKey, finalKey string, logger *zap.Logger) error {
	src := fmt.Sprintf("%s/%s", bucket, tmpKey)
	if _, err := client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		CopySource: aws.String(src),
		Key:        aws.String(finalKey),
	}); err != nil {
		return fmt.Errorf("copy object %s: %w", src, err)
	}
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(tmpKey),
	}); err != nil {
		logger.Sugar().Warnw("delete tmp object failed", "key", tmpKey, "err", err)
	}
	return nil
}

// RunOnce performs one full pass over entity types and flushes where the
// thresholds are met.
func RunOnce(ctx context.Context, cfg ExportConfig, dryRun bool, logger *zap.Logger) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	if cfg.S3Region != "" {
		awsCfg.Region = cfg.S3Region
	}
	if envKey := os.Getenv("AWS_ACCESS_KEY_ID"); envKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), "")
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	pgPassword := cfg.PGPassword
	if cfg.PGUseIAM {
		endpoint := fmt.Sprintf("%s:%d", cfg.PGHost, cfg.PGPort)
		if token, err := generateIAMTokenFn(ctx, endpoint, awsCfg.Region, awsCfg.Credentials); err == nil && token != "" {
			pgPassword = token
			logger.Sugar().Infow("generated IAM auth token for Postgres connection")
		} else {
			logger.Sugar().Warnw("failed to generate IAM auth token; falling back to configured password", "err", err)
		}
	}

	sslMode := cfg.PGSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	pgConnStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGHost, cfg.PGPort, cfg.PGUser, pgPassword, cfg.PGDB, sslMode)
	db, err := sql.Open("postgres", pgConnStr)
	if err != nil {
		return fmt.Errorf("open pg: %w", err)
	}
	defer db.Close()

	duck, err := NewSnapshotExporter(ctx, cfg, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), logger)
	if err != nil {
		return fmt.Errorf("new snapshot exporter: %w", err)
	}
	defer duck.DB.Close()

	q := fmt.Sprintf("SELECT DISTINCT entity_ct FROM %s WHERE flushed_at = 0", cfg.ChangeLogTable)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query distinct entity types: %w", err)
	}
	defer rows.Close()
	var entityTypes []string
	for rows.Next() {
		var ct string
		if err := rows.Scan(&ct); err != nil {
			return fmt.Errorf("scan entity type: %w", err)
		}
		entityTypes = append(entityTypes, ct)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entity types: %w", err)
	}

	for _, entityType := range entityTypes {
		logger.Sugar().Infow("processing entity type", "entity_ct", entityType)
		locked, err := AcquireTypeLock(ctx, db, entityType)
		if err != nil {
			logger.Sugar().Errorw("acquire lock failed", "entity_ct", entityType, "err", err)
			continue
		}
		if !locked {
			logger.Sugar().Infow("lock not acquired, skipping", "entity_ct", entityType)
			continue
		}
		func() {
			defer ReleaseTypeLock(ctx, db, entityType)

			cnt, oldest, err := ChangeLogStats(ctx, db, cfg.ChangeLogTable, entityType)
			if err != nil {
				logger.Sugar().Errorw("change log stats failed", "err", err)
				return
			}
			if !ShouldFlush(cfg, cnt, oldest, time.Now().UnixMilli()) {
				logger.Sugar().Infow("skip flush: thresholds not met", "entity_ct", entityType, "cnt", cnt, "oldest", oldest)
				return
			}

			// Everything changed up to this watermark goes into one delta
			// file; later changes wait for the next pass.
			snapshot := time.Now().UnixMilli()

			tmpUUID := uuid.Must(uuid.NewV7()).String()
			finalUUID := uuid.Must(uuid.NewV7()).String()
			prefix := strings.TrimSuffix(cfg.S3Prefix, "/")
			tmpKey := prefix + fmt.Sprintf("/delta/%s/_tmp/%s.parquet", entityType, tmpUUID)
			finalKey := prefix + fmt.Sprintf("/delta/%s/%s.parquet", entityType, finalUUID)
			s3TmpPath := fmt.Sprintf("s3://%s/%s", cfg.S3Bucket, tmpKey)

			logger.Sugar().Infow("export snapshot", "entity_ct", entityType, "snapshot_ts", snapshot, "tmp", s3TmpPath)
			if err := duck.ExportSnapshotToTmp(ctx, cfg, pgConnStr, s3TmpPath, entityType, snapshot); err != nil {
				logger.Sugar().Errorw("duckdb export failed", "err", err)
				return
			}
			if err := CopyTmpToFinal(ctx, s3Client, cfg.S3Bucket, tmpKey, finalKey, logger); err != nil {
				logger.Sugar().Errorw("s3 copy tmp->final failed", "err", err)
				return
			}
			if dryRun {
				logger.Sugar().Infow("dry-run: skipping mark flushed", "entity_ct", entityType)
				return
			}
			flushedAt := time.Now().UnixMilli()
			rowsUpdated, err := MarkFlushed(ctx, db, cfg.ChangeLogTable, entityType, snapshot, flushedAt)
			if err != nil {
				logger.Sugar().Errorw("mark flushed failed", "err", err)
				return
			}
			logger.Sugar().Infow("flush completed", "entity_ct", entityType, "rows_flushed", rowsUpdated, "final_key", finalKey)
		}()
	}
	return nil
}
