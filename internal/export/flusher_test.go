package export

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func TestIAMTokenFallbackUsesConfiguredPassword(t *testing.T) {
	ctx := context.Background()
	orig := generateIAMTokenFn
	defer func() { generateIAMTokenFn = orig }()
	// simulate generate fn returning empty token and no error
	generateIAMTokenFn = func(ctx context.Context, endpoint, region string, creds aws.CredentialsProvider) (string, error) {
		return "", nil
	}
	cfg := ExportConfig{PGHost: "localhost", PGPort: 5432, PGUser: "u", PGDB: "db", PGUseIAM: true, PGPassword: "envpass"}
	pgPassword := cfg.PGPassword
	if cfg.PGUseIAM {
		if token, err := generateIAMTokenFn(ctx, "localhost:5432", "us-east-1", nil); err == nil && token != "" {
			pgPassword = token
		}
	}
	if pgPassword != "envpass" {
		t.Fatalf("expected fallback to envpass, got %s", pgPassword)
	}
}

func TestTypeLockKeyStableAndDistinct(t *testing.T) {
	a := typeLockKey("patient")
	if b := typeLockKey("patient"); a != b {
		t.Fatalf("lock key not stable: %d vs %d", a, b)
	}
	if c := typeLockKey("supplier"); a == c {
		t.Fatalf("distinct types collided on lock key: %d", a)
	}
}

func TestShouldFlush(t *testing.T) {
	cfg := ExportConfig{MinRecords: 100, MaxAgeMs: 60_000}
	now := int64(1_700_000_000_000)

	if ShouldFlush(cfg, 0, 0, now) {
		t.Fatal("empty backlog must never flush")
	}
	if !ShouldFlush(cfg, 100, now, now) {
		t.Fatal("backlog at MinRecords must flush")
	}
	if ShouldFlush(cfg, 5, now-1_000, now) {
		t.Fatal("small young backlog must not flush")
	}
	if !ShouldFlush(cfg, 5, now-60_000, now) {
		t.Fatal("old backlog must flush even when small")
	}
	// zero thresholds disable their rule
	if ShouldFlush(ExportConfig{MaxAgeMs: 60_000}, 1_000_000, now, now) {
		t.Fatal("MinRecords=0 disables the count rule")
	}
}
