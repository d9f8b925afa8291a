package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openfacet/facet"
	"github.com/openfacet/facet/factory"
	"github.com/openfacet/facet/internal"
)

type options struct {
	host          string
	port          int
	database      string
	user          string
	password      string
	sslMode       string
	valueTable    string
	changeTable   string
	entityType    string
	entityCount   int
	chunkSize     int
	purge         bool
	migrate       bool
	withChangeLog bool
	seed          int64
	seedProvided  bool
}

func main() {
	log.SetFlags(0)

	opts := parseFlags()
	ctx := context.Background()

	if opts.migrate {
		dsn := internal.PostgresDSN(opts.host, opts.port, opts.user, opts.password, opts.database, opts.sslMode)
		if err := internal.RunMigrations(dsn); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Println("[info] Schema migrations applied")
	}

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		log.Fatalf("failed to create connection pool: %v", err)
	}
	defer pool.Close()

	eng, err := factory.NewEngineWithConfig(engineConfig(opts), pool)
	if err != nil {
		log.Fatalf("failed to assemble engine: %v", err)
	}

	catalog, choices, err := ensureCatalog(ctx, eng)
	if err != nil {
		log.Fatalf("failed to ensure benchmark catalog: %v", err)
	}
	log.Printf("[info] Benchmark catalog ready: %d attributes, %d status choices", len(catalog), len(choices))

	conn, err := pool.Acquire(ctx)
	if err != nil {
		log.Fatalf("failed to acquire connection: %v", err)
	}
	defer conn.Release()

	if opts.purge {
		if err := withTx(ctx, conn, func(tx pgx.Tx) error {
			return purgeEntityType(ctx, tx, opts, opts.entityType)
		}); err != nil {
			log.Fatalf("failed to purge existing data: %v", err)
		}
		log.Printf("[info] Cleared existing rows for entity type %q", opts.entityType)
	}

	if opts.entityCount <= 0 {
		log.Println("[info] No data generated (entity count was zero).")
		return
	}

	if !opts.seedProvided {
		log.Printf("[info] Using random seed %d", opts.seed)
	}
	random := rand.New(rand.NewSource(opts.seed))

	rows, changes := buildValueRows(catalog, choices, opts.entityType, opts.entityCount, random)

	start := time.Now()
	if err := copyRowsInChunks(ctx, conn, opts.valueTable, valueColumns, rows, opts.chunkSize); err != nil {
		log.Fatalf("failed to insert values: %v", err)
	}
	if opts.withChangeLog {
		if err := copyRowsInChunks(ctx, conn, opts.changeTable, changeColumns, changes, opts.chunkSize); err != nil {
			log.Fatalf("failed to insert change log rows: %v", err)
		}
	}
	elapsed := time.Since(start)

	log.Println("[success] Benchmark data generation complete:")
	log.Printf("  - entity type: %s", opts.entityType)
	log.Printf("  - entities: %d, values: %d", opts.entityCount, len(rows))
	if opts.withChangeLog {
		log.Printf("  - change log rows: %d", len(changes))
	}
	log.Printf("  - duration: %v (%.0f values/sec)", elapsed.Round(time.Millisecond), float64(len(rows))/elapsed.Seconds())
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flag.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flag.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "facet"), "database name")
	flag.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flag.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flag.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flag.StringVar(&opts.valueTable, "value-table", getenvDefault("VALUE_TABLE", "eav_value"), "value table")
	flag.StringVar(&opts.changeTable, "change-log-table", getenvDefault("CHANGE_LOG_TABLE", "eav_change_log"), "change log table")
	flag.StringVar(&opts.entityType, "entity-type", "bench.listing", "entity content type to seed")
	flag.IntVar(&opts.entityCount, "entities", 100_000, "number of entities to generate")
	flag.IntVar(&opts.chunkSize, "chunk-size", 1000, "number of rows to copy per batch")
	flag.BoolVar(&opts.purge, "purge", false, "delete existing rows for the entity type before seeding")
	flag.BoolVar(&opts.migrate, "migrate", false, "apply schema migrations before seeding")
	flag.BoolVar(&opts.withChangeLog, "change-log", false, "also stamp change log rows so the export path has work")
	seed := flag.Int64("seed", 0, "random seed (0 uses current time)")

	flag.Parse()

	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
		opts.seedProvided = false
	} else {
		opts.seed = *seed
		opts.seedProvided = true
	}

	if opts.chunkSize < 1000 {
		opts.chunkSize = 1000
	}

	if opts.entityCount < 0 {
		log.Fatal("entity count must be non-negative")
	}

	return opts
}

func engineConfig(opts options) *facet.Config {
	cfg := facet.DefaultConfig()
	cfg.Database.Host = opts.host
	cfg.Database.Port = opts.port
	cfg.Database.Database = opts.database
	cfg.Database.Username = opts.user
	cfg.Database.Password = opts.password
	cfg.Database.SSLMode = opts.sslMode
	cfg.Database.TableNames.Values = opts.valueTable
	cfg.Database.TableNames.ChangeLog = opts.changeTable
	return cfg
}

func buildConnString(opts options) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := u.Query()
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ensureCatalog creates the benchmark attribute set and status group when
// absent. Reruns are no-ops apart from the membership union.
func ensureCatalog(ctx context.Context, eng facet.Engine) ([]*facet.Attribute, []facet.EnumValue, error) {
	group, err := eng.Enums().GetGroup(ctx, "bench_status")
	if facet.IsNotFoundError(err) {
		group, err = eng.Enums().CreateGroup(ctx, "bench_status")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ensure status group: %w", err)
	}
	if err := eng.Enums().AddGroupValues(ctx, group.ID, "new", "active", "archived", "flagged"); err != nil {
		return nil, nil, fmt.Errorf("seed status choices: %w", err)
	}
	choices, err := eng.Enums().GroupChoices(ctx, group.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load status choices: %w", err)
	}

	defs := []facet.CreateAttribute{
		{Name: "Bench Display Name", Datatype: facet.DatatypeText},
		{Name: "Bench City", Datatype: facet.DatatypeText},
		{Name: "Bench Notes", Datatype: facet.DatatypeText},
		{Name: "Bench Score", Datatype: facet.DatatypeFloat},
		{Name: "Bench Monthly Fee", Datatype: facet.DatatypeFloat},
		{Name: "Bench Listed On", Datatype: facet.DatatypeDate},
		{Name: "Bench Active", Datatype: facet.DatatypeBoolean},
		{Name: "Bench Status", Datatype: facet.DatatypeEnum, EnumGroupID: &group.ID},
		{Name: "Bench Agent", Datatype: facet.DatatypeObject},
	}

	catalog := make([]*facet.Attribute, 0, len(defs))
	for _, def := range defs {
		slug := facet.Slugify(def.Name)
		attr, err := eng.Attributes().GetBySlug(ctx, slug)
		if facet.IsNotFoundError(err) {
			attr, err = eng.Attributes().Create(ctx, def)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ensure attribute %q: %w", slug, err)
		}
		catalog = append(catalog, attr)
	}

	return catalog, choices, nil
}

func purgeEntityType(ctx context.Context, tx pgx.Tx, opts options, entityType string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE entity_ct = $1`, quoteIdentifier(opts.valueTable))
	if _, err := tx.Exec(ctx, query, entityType); err != nil {
		return fmt.Errorf("purge values for %s: %w", entityType, err)
	}
	query = fmt.Sprintf(`DELETE FROM %s WHERE entity_ct = $1`, quoteIdentifier(opts.changeTable))
	if _, err := tx.Exec(ctx, query, entityType); err != nil {
		return fmt.Errorf("purge change log for %s: %w", entityType, err)
	}
	return nil
}

var valueColumns = []string{
	"id", "entity_ct", "entity_id", "attribute_id",
	"value_text", "value_float", "value_date", "value_bool",
	"value_object_ct", "value_object_id", "value_enum_id",
	"created_at", "updated_at",
}

var changeColumns = []string{
	"entity_ct", "entity_id", "attribute_id", "flushed_at", "changed_at", "deleted_at",
}

// buildValueRows generates one value row per (entity, attribute) pair plus
// the matching unflushed change log rows.
func buildValueRows(catalog []*facet.Attribute, choices []facet.EnumValue, entityType string, count int, r *rand.Rand) ([][]any, [][]any) {
	cities := []string{"Aurora", "Brookfield", "Carlton", "Dunmore", "Eastvale", "Fairhaven"}
	firstNames := []string{"Alex", "Taylor", "Jordan", "Morgan", "Casey", "Riley", "Naomi", "Ken"}
	lastNames := []string{"Reed", "Vance", "Okafor", "Ito", "Lindqvist", "Moreau"}
	notes := []string{"corner unit", "recently renewed", "needs staging", "priority follow-up"}

	now := time.Now().UnixMilli()
	rows := make([][]any, 0, count*len(catalog))
	changes := make([][]any, 0, count*len(catalog))

	for i := 0; i < count; i++ {
		entityID := uuid.Must(uuid.NewV7())

		for _, attr := range catalog {
			var valueText, valueFloat, valueDate, valueBool any
			var valueObjectCT, valueObjectID, valueEnumID any

			switch attr.Datatype {
			case facet.DatatypeText:
				switch attr.Slug {
				case "bench_city":
					valueText = randomChoice(r, cities)
				case "bench_notes":
					valueText = fmt.Sprintf("%s #%d", randomChoice(r, notes), i+1)
				default:
					valueText = fmt.Sprintf("%s %s", randomChoice(r, firstNames), randomChoice(r, lastNames))
				}
			case facet.DatatypeFloat:
				if attr.Slug == "bench_monthly_fee" {
					valueFloat = float64(r.Intn(45_000-12_000) + 12_000)
				} else {
					valueFloat = math.Round(r.Float64()*1000) / 10
				}
			case facet.DatatypeDate:
				d := time.Now().UTC().AddDate(0, 0, -r.Intn(365))
				valueDate = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			case facet.DatatypeBoolean:
				valueBool = r.Intn(2) == 0
			case facet.DatatypeEnum:
				valueEnumID = choices[r.Intn(len(choices))].ID
			case facet.DatatypeObject:
				valueObjectCT = "bench.agent"
				valueObjectID = uuid.New()
			}

			rows = append(rows, []any{
				uuid.New(), entityType, entityID, attr.ID,
				valueText, valueFloat, valueDate, valueBool,
				valueObjectCT, valueObjectID, valueEnumID,
				now, now,
			})
			changes = append(changes, []any{
				entityType, entityID, attr.ID, int64(0), now, nil,
			})
		}
	}

	return rows, changes
}

func copyRowsInChunks(ctx context.Context, conn *pgxpool.Conn, table string, columns []string, rows [][]any, chunkSize int) error {
	if len(rows) == 0 {
		return nil
	}

	if chunkSize <= 0 {
		chunkSize = len(rows)
	}

	tableIdent := pgx.Identifier(splitIdentifier(table))

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		chunk := rows[start:end]
		if err := withTx(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.CopyFrom(ctx, tableIdent, columns, pgx.CopyFromRows(chunk)); err != nil {
				return fmt.Errorf("copy into %s: %w", table, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

func randomChoice(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
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
