package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autodojo/internal/api"
	"autodojo/internal/config"
	"autodojo/internal/openapi"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "REST endpoints generated from model descriptions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		app, err := api.Bootstrap(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		engine, err := api.NewEngine(app)
		if err != nil {
			return err
		}
		return api.RunServer(ctx, ":"+cfg.Port, engine, log)
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the generated route table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := load(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tVERB\tSTATUSES\tREQUEST\tRESPONSE")
		for _, r := range app.Routes() {
			codes := make([]string, len(r.Statuses))
			for i, c := range r.Statuses {
				codes[i] = fmt.Sprint(c)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Method, r.Path, r.Verb, strings.Join(codes, ","), dash(r.Request), dash(r.Response))
		}
		return w.Flush()
	},
}

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the OpenAPI document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := load(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		doc, err := openapi.Build(app.Config.Title, api.Version, app.Config.BasePath, app.Routers...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return err
	},
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	log, err := cfg.Logger()
	return cfg, log, err
}

// load собирает приложение для офлайн-команд: без журнала запросов и миграций.
func load(cmd *cobra.Command) (*api.App, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.AutoMigrate = false
	return api.Bootstrap(cmd.Context(), cfg, zap.NewNop())
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd, routesCmd, openapiCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
