package export

import (
	"strings"
	"testing"
)

func TestEscapeSQLLiteral(t *testing.T) {
	pg := "host=foo user=bar password=pa'ss dbname=baz"
	if got := escapeSQLLiteral(pg); !strings.Contains(got, "pa''ss") {
		t.Fatalf("escaped conn string missing doubled quote: %s", got)
	}
	if got := escapeSQLLiteral("plain"); got != "plain" {
		t.Fatalf("escape changed a clean string: %s", got)
	}
}

func TestBuildSnapshotSQL(t *testing.T) {
	cfg := ExportConfig{
		ChangeLogTable: "eav_change_log",
		ValueTable:     "eav_value",
		AttributeTable: "eav_attribute",
		EnumValueTable: "eav_enum_value",
	}
	sql := buildSnapshotSQL(cfg, "host=pg password=pa'ss", "s3://bucket/delta/patient/_tmp/x.parquet", "patient", 1700000000000)

	for _, want := range []string{
		"postgres_scan('host=pg password=pa''ss', 'public', 'eav_change_log')",
		"postgres_scan('host=pg password=pa''ss', 'public', 'eav_value')",
		"postgres_scan('host=pg password=pa''ss', 'public', 'eav_attribute')",
		"postgres_scan('host=pg password=pa''ss', 'public', 'eav_enum_value')",
		"cl.entity_ct = 'patient'",
		"cl.flushed_at = 0",
		"cl.changed_at <= 1700000000000",
		"TO 's3://bucket/delta/patient/_tmp/x.parquet' (FORMAT PARQUET, COMPRESSION 'ZSTD')",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("snapshot sql missing %q:\n%s", want, sql)
		}
	}
}

func TestBuildSnapshotSQLEscapesEntityType(t *testing.T) {
	cfg := ExportConfig{
		ChangeLogTable: "eav_change_log",
		ValueTable:     "eav_value",
		AttributeTable: "eav_attribute",
		EnumValueTable: "eav_enum_value",
	}
	sql := buildSnapshotSQL(cfg, "host=pg", "s3://b/k.parquet", "o'neill", 1)
	if !strings.Contains(sql, "cl.entity_ct = 'o''neill'") {
		t.Fatalf("entity type not escaped:\n%s", sql)
	}
}
