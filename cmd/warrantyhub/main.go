package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/smallbiznis/warrantyhub/internal/migration"
	"github.com/smallbiznis/warrantyhub/internal/observability"
	"github.com/smallbiznis/warrantyhub/internal/scheduler"
	"github.com/smallbiznis/warrantyhub/internal/server"
	"github.com/smallbiznis/warrantyhub/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "warrantyhub",
	Short:   "Multi-tenant warranty, asset and AMC service",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background maintenance jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		fx.New(
			core(),
			migration.Module,
			scheduler.Module,
			server.Module,
		).Run()
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the background maintenance jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		fx.New(
			core(),
			scheduler.Module,
		).Run()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the plan catalog, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			core(),
			migration.Module,
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := app.Start(ctx); err != nil {
			return err
		}
		return app.Stop(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// core is the infrastructure and domain graph every command shares.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.DomainModules,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
