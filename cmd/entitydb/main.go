package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpapi "entitydb/internal/http"
	"entitydb/pkg/config"
	"entitydb/pkg/metrics"
	"entitydb/pkg/rpc"
	"entitydb/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverAddr string
	where      string

	rootCmd = &cobra.Command{
		Use:   "entitydb",
		Short: "An in-memory indexed entity store served over HTTP",
		Long: `entitydb keeps collections of JSON documents in immutable snapshots
with sorted primary keys and secondary indexes, and serves them over a JSON API.`,
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	checkConfigCmd = &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and print the declared collections",
		Args:  cobra.NoArgs,
		RunE:  runCheckConfig,
	}
	getCmd = &cobra.Command{
		Use:   "get <collection> [key]",
		Short: "Fetch one document, or the documents of a collection, from a running server",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config")
	getCmd.Flags().StringVar(&serverAddr, "addr", "http://localhost:8080", "base URL of the server")
	getCmd.Flags().StringVar(&where, "where", "", "predicate applied when listing a collection")
	rootCmd.AddCommand(serveCmd, checkConfigCmd, getCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(&cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := store.Open(cfg, store.Options{Metrics: metrics.NewPrometheus("entitydb", reg)})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	for _, name := range db.Names() {
		watchChanges(ctx, db, name)
	}

	server := httpapi.NewServer(db, cfg.Server, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	slog.Info("entitydb stopped")
	return nil
}

// watchChanges logs the committed changes of a collection at debug level.
func watchChanges(ctx context.Context, db *store.DB, name string) {
	c, err := db.Collection(name)
	if err != nil {
		return
	}
	c.Watch(ctx, func(ch store.Change) error {
		slog.Debug("change committed",
			"collection", ch.Collection,
			"op", ch.Op,
			"mutation", ch.Mutation,
			"seq", ch.Seq,
			"total", ch.Total,
		)
		return nil
	})
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	// building the database checks what validation tags cannot
	db, err := store.Open(cfg, store.Options{Metrics: metrics.Nop{}})
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config ok: mode=%s port=%d\n", cfg.Mode, cfg.Server.Port)
	for _, cc := range cfg.Collections {
		key := cc.Key
		if key == "" {
			key = "<generated>"
		}
		fmt.Fprintf(out, "  %s key=%s indexes=%d\n", cc.Name, key, len(cc.Indexes))
	}
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	client := rpc.NewClient(serverAddr)

	var value any
	var err error
	if len(args) == 2 {
		value, err = client.Get(cmd.Context(), args[0], args[1])
	} else {
		value, err = client.List(cmd.Context(), args[0], where)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
