package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/app"
	"github.com/Additional-Code/ordertrack/internal/migration"
	"github.com/Additional-Code/ordertrack/internal/seeder"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
)

const shutdownTimeout = 10 * time.Second

// NewRootCommand builds the ordertrack command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ordertrack",
		Short:         "Order tracking service toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd("start", "Serve the order HTTP and gRPC APIs", app.Module, "run"),
		migrateCmd(),
		seedCmd(),
		ordersCmd(),
		workerCmd(),
	)
	return root
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ordertrack:", err)
	}
	return err
}

// serveCmd runs graph until the command context is cancelled.
func serveCmd(use, short string, graph fx.Option, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), graph, func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the order schema"}

	up := toolCmd("up", "Apply pending migrations", func(cmd *cobra.Command, mig *migration.Migrator) error {
		if err := mig.Up(cmd.Context()); err != nil {
			return err
		}
		return say(cmd, "migrations applied")
	})

	var (
		steps int
		all   bool
	)
	down := toolCmd("down", "Roll back applied migrations", func(cmd *cobra.Command, mig *migration.Migrator) error {
		if err := mig.Down(cmd.Context(), steps, all); err != nil {
			return err
		}
		return say(cmd, "migrations rolled back")
	})
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "Roll back every applied migration")

	status := toolCmd("status", "Print the applied schema version", func(cmd *cobra.Command, mig *migration.Migrator) error {
		version, err := mig.Version(cmd.Context())
		if err != nil {
			return err
		}
		return say(cmd, fmt.Sprintf("schema version %d", version))
	})

	cmd.AddCommand(up, down, status)
	return cmd
}

func seedCmd() *cobra.Command {
	return toolCmd("seed", "Insert sample orders", func(cmd *cobra.Command, seed *seeder.Seeder) error {
		if err := seed.Orders(cmd.Context()); err != nil {
			return err
		}
		return say(cmd, "seed data applied")
	})
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Inspect stored orders"}

	var field, value string
	find := &cobra.Command{
		Use:   "find",
		Short: "Print orders whose field equals value, one JSON document per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc *service.Service
			return withApp(cmd.Context(), fx.Options(app.Core, fx.Populate(&svc)), func(ctx context.Context) error {
				orders, err := svc.FindBy(ctx, field, value)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for order, err := range orders {
					if err == nil {
						err = enc.Encode(order.Serialize())
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	find.Flags().StringVar(&field, "field", "userid", "Lookup field: userid or status")
	find.Flags().StringVar(&value, "value", "", "Value the field must equal")
	_ = find.MarkFlagRequired("value")

	cmd.AddCommand(find)
	return cmd
}

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "worker", Short: "Consume order events"}
	cmd.AddCommand(serveCmd("run", "Run the order event consumers", app.Worker))
	return cmd
}

// toolCmd builds a one-shot command that resolves T from the tooling graph and passes it to run.
func toolCmd[T any](use, short string, run func(*cobra.Command, T) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var dep T
			return withApp(cmd.Context(), fx.Options(app.Tools, fx.Populate(&dep)), func(context.Context) error {
				return run(cmd, dep)
			})
		},
	}
}

// withApp starts graph, runs fn and always stops the graph afterwards.
func withApp(ctx context.Context, graph fx.Option, fn func(context.Context) error) (err error) {
	application := fx.New(graph, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if stopErr := application.Stop(stopCtx); err == nil {
			err = stopErr
		}
	}()
	return fn(ctx)
}

func say(cmd *cobra.Command, line string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
	return err
}
