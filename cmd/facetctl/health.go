package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfacet/facet/internal"
)

var healthTimeout time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and object store connectivity",
	Long: `Check that the database is accessible and, when S3_ENDPOINT is
configured, that the object store endpoint answers.

Examples:
  facetctl health
  facetctl health --timeout 10s
`,
	Run: func(cmd *cobra.Command, args []string) {
		loadEnv()
		ctx := context.Background()

		if err := internal.PostgresHealthCheck(ctx, databaseDSN(), healthTimeout); err != nil {
			fmt.Printf("❌ Postgres health check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Postgres is healthy and accessible")

		endpoint := os.Getenv("S3_ENDPOINT")
		if endpoint == "" {
			fmt.Println("⚠️  S3_ENDPOINT not set; skipping object store check")
			return
		}

		if err := internal.S3EndpointCheck(ctx, endpoint, healthTimeout); err != nil {
			fmt.Printf("❌ Object store check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Object store endpoint is reachable")
	},
}

func init() {
	healthCmd.Flags().DurationVarP(&healthTimeout, "timeout", "t", 5*time.Second, "Timeout for health checks")
}
