package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/openfacet/facet/factory"
	"github.com/openfacet/facet/internal"
)

var applyFile string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a definition document to the attribute catalog",
	Long: `Apply a YAML or JSON definition document: enum groups and
attributes it names are created, and choice labels are unioned into
their groups. Re-applying an unchanged document is a no-op.

The document can live on disk or in S3.

Examples:
  facetctl apply -f definitions.yaml
  facetctl apply -f s3://config-bucket/patient.yaml
`,
	Run: func(cmd *cobra.Command, args []string) {
		loadEnv()

		if applyFile == "" {
			fmt.Println("❌ --file is required")
			os.Exit(1)
		}

		ctx := context.Background()

		doc, err := loadDefinition(ctx, applyFile)
		if err != nil {
			fmt.Println("❌ Load definition:", err)
			os.Exit(1)
		}

		pool, err := pgxpool.New(ctx, databaseDSN())
		if err != nil {
			fmt.Println("❌ Connect to database:", err)
			os.Exit(1)
		}
		defer pool.Close()

		eng, err := factory.NewEngineWithConfig(engineConfigFromEnv(), pool)
		if err != nil {
			fmt.Println("❌ Create engine:", err)
			os.Exit(1)
		}

		result, err := internal.ApplyDefinitions(ctx, eng, doc)
		if err != nil {
			fmt.Println("❌ Apply failed:", err)
			os.Exit(1)
		}

		color.Green("✅ Definitions applied")
		fmt.Printf("   groups created:     %d\n", result.GroupsCreated)
		fmt.Printf("   attributes created: %d\n", result.AttributesCreated)
		if len(result.AttributesSkipped) > 0 {
			fmt.Printf("   already present:    %s\n", strings.Join(result.AttributesSkipped, ", "))
		}
	},
}

// loadDefinition reads the document from disk or fetches it from S3 when
// the source carries an s3:// scheme.
func loadDefinition(ctx context.Context, source string) (*internal.DefinitionDocument, error) {
	if strings.HasPrefix(source, "s3://") {
		return internal.FetchS3Definition(ctx, source, internal.S3SourceOptions{
			Region:    getenvDefault("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
	}
	return internal.LoadDefinitionFile(source)
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "Definition document path or s3:// URL")
}
