package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AmirTlinov/context-pack/internal/app"
	"github.com/AmirTlinov/context-pack/internal/config"
	"github.com/AmirTlinov/context-pack/internal/journal"
	"github.com/AmirTlinov/context-pack/internal/journal/migrations"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "serve", "input").
func newApp(operation string) (*app.App, error) {
	cfg, _, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "ctxpack",
	Short:        "Context pack document store",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := app.LoadConfig()
		if err != nil {
			return err
		}

		if path == "" {
			fmt.Print("No config file; using built-in defaults.\n\n")
		} else {
			fmt.Printf("Configuration from %s:\n\n", path)
		}
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s (level %s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Store:        %s %s (max %s per pack)\n", cfg.Store.Type, cfg.Store.Root,
			humanize.IBytes(uint64(cfg.Store.MaxPackBytes)))
		fmt.Printf("Source Root:  %s (max %s per file, cache=%t, watch=%t)\n", cfg.Source.Root,
			humanize.IBytes(uint64(cfg.Source.MaxSourceBytes)), cfg.Source.Cache, cfg.Source.Watch)
		fmt.Printf("Deny:         %s\n", strings.Join(cfg.Source.Deny, ", "))
		fmt.Printf("Journal:      %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Archive:      %s (encrypt=%t)\n", cfg.Archive.Type, cfg.Archive.Encrypt)
		fmt.Printf("Grace:        %ds\n", cfg.Freshness.ExpiredGraceSeconds)
		fmt.Printf("Workers:      %d\n", cfg.Server.Workers)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve newline-delimited JSON requests on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OperationServe)
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = a.Config().Server.MetricsAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Closing stdin unblocks the pending read once a signal arrives.
		go func() {
			<-ctx.Done()
			os.Stdin.Close()
		}()

		g, gctx := errgroup.WithContext(ctx)
		metricsCtx, stopMetrics := context.WithCancel(gctx)
		defer stopMetrics()
		if addr != "" {
			g.Go(func() error { return a.ServeMetrics(metricsCtx, addr) })
		}
		g.Go(func() error {
			defer stopMetrics()
			return a.Serve(gctx, os.Stdin, os.Stdout)
		})
		return g.Wait()
	},
}

// input and output commands
func toolCmd(tool, short string) *cobra.Command {
	return &cobra.Command{
		Use:   tool + " [ARGS_JSON]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArgs(args)
			if err != nil {
				return err
			}

			a, err := newApp(tool)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Dispatch(context.Background(), app.Request{Tool: tool, Args: raw})
			switch r := resp.(type) {
			case *app.Failure:
				if err := printJSON(r); err != nil {
					return err
				}
				return fmt.Errorf("%s: %s", r.Kind, r.Message)
			case *app.Success:
				if tool == app.ToolOutput {
					fmt.Println(r.Text)
					return nil
				}
				return printJSON(r)
			default:
				return fmt.Errorf("unexpected response %T", resp)
			}
		},
	}
}

// readArgs takes the request arguments from the command line, or from stdin when the
// argument is "-" or missing.
func readArgs(args []string) (json.RawMessage, error) {
	if len(args) == 1 && args[0] != "-" {
		return json.RawMessage(args[0]), nil
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, app.MaxRequestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading arguments from stdin: %w", err)
	}
	if len(data) > app.MaxRequestBytes {
		return nil, fmt.Errorf("arguments exceed %s", humanize.IBytes(app.MaxRequestBytes))
	}
	return json.RawMessage(data), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the mutation journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		packID, _ := cmd.Flags().GetString("pack")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(context.Background(), packID, limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No mutations recorded.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("#%d  %s  %s  %-14s  rev %-4d  %s\n",
				e.ID,
				e.At.Local().Format("2006-01-02 15:04:05"),
				e.PackID,
				e.Action,
				e.Revision,
				e.RequestID,
			)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := app.LoadConfig()
		if err != nil {
			return err
		}

		pass, err := promptNewPassphrase()
		if err != nil {
			return err
		}
		recipient, err := app.KeysInit(cfg.Encryption, pass)
		if err != nil {
			return err
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		fmt.Printf("Recipient:   %s\n", recipient)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived pack records",
}

var archiveListCmd = &cobra.Command{
	Use:   "list PACK_ID",
	Short: "List archived revisions of a pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("archive-list")
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.ArchiveList(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No archived records.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show PACK_ID REVISION",
	Short: "Print an archived pack record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || revision < 1 {
			return fmt.Errorf("revision must be a positive integer (got %q)", args[1])
		}

		a, err := newApp("archive-show")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ArchiveShow(context.Background(), args[0], revision, promptPassphrase, os.Stdout); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

// journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage the mutation journal",
}

var journalMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the journal database to the latest schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := app.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.Type != "sqlite" && cfg.Journal.Type != "" {
			return fmt.Errorf("journal type %q has no database to migrate", cfg.Journal.Type)
		}
		if err := os.MkdirAll(cfg.Journal.DataDir, 0o700); err != nil {
			return fmt.Errorf("creating journal directory: %w", err)
		}

		path := filepath.Join(cfg.Journal.DataDir, journal.FileName)
		db, err := journal.OpenConnection(path)
		if err != nil {
			return err
		}
		defer db.Close()

		before, err := migrations.ReadStatus(db)
		if err != nil {
			return err
		}
		if err := migrations.MigrateUp(db); err != nil {
			return err
		}
		after, err := migrations.ReadStatus(db)
		if err != nil {
			return err
		}

		fmt.Printf("Journal %s: version %d -> %d (latest %d)\n", path, before.Version, after.Version, after.Latest)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys, archive and journal subcommands
	keysCmd.AddCommand(keysInitCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	journalCmd.AddCommand(journalMigrateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	rootCmd.AddCommand(toolCmd(app.ToolInput, "Run one mutate request"))
	rootCmd.AddCommand(toolCmd(app.ToolOutput, "Run one read request and print the rendered pack"))
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().String("pack", "", "Only show entries for this pack id")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(journalCmd)
}
