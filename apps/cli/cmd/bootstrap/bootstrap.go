package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (shared schema)",
		Long:  "Bootstrap platform resources such as the tenant registry and shared entity tables in the shared database.",
	}

	cmd.AddCommand(sharedCommand())
	return cmd
}

func sharedCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "shared",
		Short: "Create the tenant registry and shared entity tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapSharedSchema(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap shared schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "shared schema ready")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL of the shared database")
	_ = c.MarkFlagRequired("database-url")
	return c
}
