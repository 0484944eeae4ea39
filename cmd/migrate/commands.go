package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/config"
	"itdesk.org/internal/migrate"
	"itdesk.org/internal/obs"
	"itdesk.org/internal/store/pg"
)

const commandTimeout = 2 * time.Minute

type options struct {
	v              *viper.Viper
	configFile     string
	migrationsPath string
	seedsPath      string
}

func newRootCmd() *cobra.Command {
	opts := &options{v: config.New()}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the itdesk database schema and seed data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			if opts.configFile != "" {
				opts.v.SetConfigFile(opts.configFile)
				if err := opts.v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", opts.configFile, err)
				}
			}
			return obs.ConfigureLogger(opts.v.GetString("log.level"), opts.v.GetString("log.format"))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "optional config file")
	flags.String("dsn", "", "PostgreSQL DSN (env ITDESK_DATABASE_DSN)")
	flags.StringVar(&opts.migrationsPath, "migrations", "ops/migrations/sql", "path to SQL migrations")
	flags.StringVar(&opts.seedsPath, "seeds", "ops/migrations/seeds", "path to SQL seeds")
	_ = opts.v.BindPFlag("database.dsn", flags.Lookup("dsn"))

	root.AddCommand(
		newUpCmd(opts),
		newDownCmd(opts),
		newSeedCmd(opts),
		newStatusCmd(opts),
		newBootstrapAdminCmd(opts),
	)
	return root
}

func (o *options) open() (*pg.Store, error) {
	dsn := strings.TrimSpace(o.v.GetString("database.dsn"))
	if dsn == "" {
		return nil, errors.New("missing DSN: provide --dsn or ITDESK_DATABASE_DSN")
	}
	return pg.Open(dsn, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
}

// withManager opens the database, runs fn against a migration manager and
// closes the connection.
func (o *options) withManager(fn func(context.Context, *migrate.Manager) error) error {
	store, err := o.open()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, migrate.NewManager(store.DB(), o.migrationsPath, o.seedsPath, migrate.WithLogger(obs.Logger())))
}

func newUpCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withManager(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
				return nil
			})
		},
	}
}

func newDownCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withManager(func(ctx context.Context, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
				return nil
			})
		},
	}
}

func newSeedCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply pending seed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withManager(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Seed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d seed file(s)\n", len(applied))
				return nil
			})
		},
	}
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withManager(func(ctx context.Context, m *migrate.Manager) error {
				entries, err := m.Status(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MIGRATION\tSTATUS\tAPPLIED AT")
				for _, e := range entries {
					status, at := "pending", ""
					if e.Applied {
						status = "applied"
						if e.AppliedAt != nil {
							at = e.AppliedAt.UTC().Format(time.RFC3339)
						}
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, status, at)
				}
				return tw.Flush()
			})
		},
	}
}

// newBootstrapAdminCmd creates the first administrator so the API can be
// used after a fresh install.
func newBootstrapAdminCmd(o *options) *cobra.Command {
	var in admin.NewUser
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("ITDESK_BOOTSTRAP_PASSWORD")
			}
			store, err := o.open()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			roleID, err := store.RoleIDByName(ctx, "Admin")
			if err != nil {
				return fmt.Errorf("admin role missing, run seed first: %w", err)
			}
			in.RoleIDs = []string{roleID}
			svc := admin.NewService(store, audit.NewRecorder(store, obs.Logger()),
				admin.WithBcryptCost(o.v.GetInt("auth.bcrypt_cost")))
			user, err := svc.CreateUser(ctx, "", in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "administrator email")
	f.StringVar(&in.Password, "password", "", "initial password (or ITDESK_BOOTSTRAP_PASSWORD)")
	f.StringVar(&in.FirstName, "first-name", "System", "first name")
	f.StringVar(&in.LastName, "last-name", "Administrator", "last name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
