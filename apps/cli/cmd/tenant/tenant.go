package tenant

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/provisioning"
	tenantsrepo "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/repo"
	tenantsservice "github.com/craftdesk-io/craftdesk-saas/domains/tenants/be/service"
	"github.com/craftdesk-io/craftdesk-saas/platform/go/persistence"
	platformtenant "github.com/craftdesk-io/craftdesk-saas/platform/go/tenant"
)

// Command groups tenant lifecycle operations.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants (onboard, provision, suspend, reactivate, delete, list)",
	}

	cmd.AddCommand(
		onboardCommand(),
		provisionCommand(),
		suspendCommand(),
		reactivateCommand(),
		deleteCommand(),
		listCommand(),
	)
	return cmd
}

// wiring shared by the subcommands. The CLI holds no long-lived tenant pools,
// so pool invalidation is a no-op here.
type deps struct {
	pool *pgxpool.Pool
	svc  *tenantsservice.Service
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}

func dial(ctx context.Context, databaseURL string) (*deps, error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	registry, err := tenantsrepo.NewPostgres(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init tenant registry: %w", err)
	}

	provisioner := provisioning.NewProvisioner(provisioning.Config{
		Registry:      registry,
		Databases:     provisioning.NewPGDatabaseCreator(pool, zap.NewNop()),
		Migrator:      provisioning.NewGooseMigrator(databaseURL, zap.NewNop()),
		TargetVersion: provisioning.TargetSchemaVersion(),
	})

	svc := tenantsservice.New(tenantsservice.Config{
		Registry:    registry,
		Provisioner: provisioner,
		Pools:       noopInvalidator{},
	})

	return &deps{pool: pool, svc: svc}, nil
}

func (d *deps) close() {
	persistence.ClosePool(d.pool)
}

func databaseURLFlag(c *cobra.Command, target *string) {
	c.Flags().StringVar(target, "database-url", "", "Postgres URL of the shared database")
	_ = c.MarkFlagRequired("database-url")
}

func printRecord(cmd *cobra.Command, rec persistence.TenantRecord) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  db=%s  status=%s  schema=v%d\n",
		rec.ID, rec.Slug, rec.DatabaseID, rec.Status, rec.SchemaVersion)
}

func onboardCommand() *cobra.Command {
	var (
		databaseURL string
		wait        bool
	)

	c := &cobra.Command{
		Use:   "onboard <slug>",
		Short: "Register a tenant; --wait provisions its database before returning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := dial(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer d.close()

			// The CLI provisions inline instead of using the service's
			// background onboarding, so the process can exit cleanly.
			rec, err := d.svc.Register(ctx, args[0])
			if err != nil {
				return fmt.Errorf("onboard tenant: %w", err)
			}
			if wait {
				rec, err = d.svc.Provision(ctx, rec.ID)
				if err != nil {
					return fmt.Errorf("provision tenant: %w", err)
				}
			}
			printRecord(cmd, rec)
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	c.Flags().BoolVar(&wait, "wait", false, "provision the tenant database before returning")
	return c
}

func provisionCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "provision <tenant-id>",
		Short: "Provision (or repair) a tenant's database synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenantID(cmd, databaseURL, args[0], func(ctx context.Context, d *deps, id uuid.UUID) error {
				rec, err := d.svc.Provision(ctx, id)
				if err != nil {
					return err
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}

func suspendCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "suspend <tenant-id>",
		Short: "Take a tenant out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenantID(cmd, databaseURL, args[0], func(ctx context.Context, d *deps, id uuid.UUID) error {
				rec, err := d.svc.Suspend(ctx, id)
				if err != nil {
					return err
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}

func reactivateCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "reactivate <tenant-id>",
		Short: "Return a suspended tenant to rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenantID(cmd, databaseURL, args[0], func(ctx context.Context, d *deps, id uuid.UUID) error {
				rec, err := d.svc.Reactivate(ctx, id)
				if err != nil {
					return err
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}

func deleteCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Mark a tenant deleted (the database is retained)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenantID(cmd, databaseURL, args[0], func(ctx context.Context, d *deps, id uuid.UUID) error {
				rec, err := d.svc.Delete(ctx, id)
				if err != nil {
					return err
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		status      string
		page        int
		pageSize    int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := dial(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer d.close()

			opts := persistence.ListOptions{Page: page, PageSize: pageSize}
			if status != "" {
				parsed, err := platformtenant.ParseStatus(status)
				if err != nil {
					return err
				}
				opts.Status = &parsed
			}

			result, err := d.svc.List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSLUG\tDATABASE\tSTATUS\tSCHEMA")
			for _, rec := range result.Tenants {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\tv%d\n",
					rec.ID, rec.Slug, rec.DatabaseID, rec.Status, rec.SchemaVersion)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d tenants\n",
				result.Page, result.TotalPages, result.TotalItems)
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&status, "status", "", "filter by lifecycle status")
	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return c
}

func withTenantID(cmd *cobra.Command, databaseURL, rawID string, fn func(context.Context, *deps, uuid.UUID) error) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", rawID, err)
	}

	ctx := cmd.Context()
	d, err := dial(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer d.close()

	return fn(ctx, d, id)
}
