package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"BetaLens/internal/model"
	"BetaLens/internal/notifier"
	"BetaLens/internal/scheduler"
	"BetaLens/internal/sensitivity"
	"BetaLens/internal/server"
)

type rootOptions struct {
	configPath string
	logLevel   string
	app        *app
}

// close releases the app built for the command. Callers run it after
// Execute returns so a failed command still closes the cache.
func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	defaultCfg := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultCfg = v
	}

	rootCmd := &cobra.Command{
		Use:           "betalens",
		Short:         "Measure how strongly altcoins move with Bitcoin",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `BetaLens estimates an altcoin's sensitivity to Bitcoin over a recent
look-back window: return beta, an ATR-based volatility multiplier or a
standard-deviation volatility multiplier. Prices come from CoinGecko with a
Binance fallback.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			opts.app = a
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultCfg, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newSensitivityCmd(opts),
		newProjectCmd(opts),
		newCoinsCmd(opts),
		newExportCmd(opts),
		newScheduleCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

func newSensitivityCmd(opts *rootOptions) *cobra.Command {
	var (
		modeFlag string
		window   int
		move     float64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "sensitivity <coin-id>",
		Short: "Compute one coin's sensitivity to BTC",
		Long:  "Compute one coin's sensitivity to BTC. With --move the linear projection of the coin's move is printed as well.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := model.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			res, err := opts.app.service.Compute(cmd.Context(), args[0], mode, window)
			if err != nil {
				return err
			}
			withMove := cmd.Flags().Changed("move")
			var projected float64
			if withMove {
				if projected, err = sensitivity.ProjectMove(res.Value, move); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if !withMove {
					return enc.Encode(res)
				}
				return enc.Encode(struct {
					*model.SensitivityResult
					BTCMovePct   float64 `json:"btc_move_pct"`
					ProjectedPct float64 `json:"projected_move_pct"`
				}{res, move, projected})
			}
			fmt.Fprintf(out, "%s %s: %.4f\n", res.CoinID, mode.DisplayName(), res.Value)
			if withMove {
				fmt.Fprintf(out, "BTC %+.2f%% -> %s %+.2f%% (linear approximation)\n", move, res.CoinID, projected)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "beta", "Metric (beta|atr|stddev)")
	cmd.Flags().IntVar(&window, "window", 0, "ATR window; 0 uses the configured window")
	cmd.Flags().Float64Var(&move, "move", 0, "Also project the coin's move for this BTC move in percent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func newProjectCmd(opts *rootOptions) *cobra.Command {
	var (
		modeFlag string
		value    float64
		move     float64
	)
	cmd := &cobra.Command{
		Use:   "project [coin-id] --move <pct>",
		Short: "Project a coin's move for a hypothetical BTC move",
		Long: `Project an altcoin move as sensitivity x BTC move. With --value the
projection uses the given sensitivity and no data is fetched; otherwise the
sensitivity of the named coin is computed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("value") {
				if len(args) > 0 {
					return fmt.Errorf("%w: pass either a coin id or --value", model.ErrInvalidInput)
				}
				projected, err := sensitivity.ProjectMove(value, move)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "BTC %+.2f%% -> %+.2f%% (sensitivity %.4f, linear approximation)\n", move, projected, value)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("%w: a coin id or --value is required", model.ErrInvalidInput)
			}

			mode, err := model.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			res, err := opts.app.service.Compute(cmd.Context(), args[0], mode, 0)
			if err != nil {
				return err
			}
			projected, err := sensitivity.ProjectMove(res.Value, move)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "BTC %+.2f%% -> %s %+.2f%% (%s %.4f, linear approximation)\n",
				move, res.CoinID, projected, mode.DisplayName(), res.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "beta", "Metric (beta|atr|stddev)")
	cmd.Flags().Float64Var(&value, "value", 0, "Sensitivity to project with instead of computing one")
	cmd.Flags().Float64Var(&move, "move", 0, "Hypothetical BTC move in percent")
	_ = cmd.MarkFlagRequired("move")
	return cmd
}

func newCoinsCmd(opts *rootOptions) *cobra.Command {
	var (
		search     string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "coins [--search query]",
		Short: "List or search the provider coin list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := search
			if query == "" && len(args) == 1 {
				query = args[0]
			}
			coins, err := opts.app.directory.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			if maxResults > 0 && len(coins) > maxResults {
				coins = coins[:maxResults]
			}
			for _, c := range coins {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.ID, strings.ToUpper(c.Symbol), c.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Match coin names and symbols, case-insensitively")
	cmd.Flags().IntVar(&maxResults, "max", 25, "Maximum results; 0 prints all")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		modeFlag string
		search   string
		limit    int
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "export [coin-id...]",
		Short: "Export sensitivities for several coins to CSV",
		Long: `Export sensitivities as CSV to --out, or to stdout when --out is empty.
Coins come from the arguments and from --search matches; without either the
scheduled coin list is used. Coins that fail are reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := model.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			ids := append([]string(nil), args...)
			if search != "" {
				found, err := opts.app.directory.SearchIDs(cmd.Context(), search)
				if err != nil {
					return err
				}
				ids = append(ids, found...)
			}
			if len(ids) == 0 {
				ids = opts.app.cfg.Schedule.Coins
			}

			report := opts.app.service.ExportBatch(cmd.Context(), ids, mode, limit)
			for _, f := range report.Failures() {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", f.CoinID, f.Err)
			}

			if outPath == "" {
				return sensitivity.WriteCSV(cmd.OutOrStdout(), mode, report.Rows())
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := sensitivity.WriteCSV(f, mode, report.Rows()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(report.Rows()), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "beta", "Metric (beta|atr|stddev)")
	cmd.Flags().StringVar(&search, "search", "", "Add every coin whose name or symbol matches")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum coins to process; 0 uses the configured limit")
	cmd.Flags().StringVar(&outPath, "out", "", "CSV file to write, e.g. "+sensitivity.ExportFileName(model.ModeBeta)+"; empty writes to stdout")
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the export on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.app.cfg
			mode, err := model.ParseMode(cfg.Schedule.Mode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var tn *notifier.TelegramNotifier
			var n scheduler.Notifier
			if cfg.TelegramEnabled() {
				tn = notifier.NewTelegramNotifier(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
				n = tn
			}

			sched := scheduler.NewScheduler(ctx, opts.app.service, n, scheduler.Job{
				Spec:      cfg.Schedule.ExportCron,
				Coins:     cfg.Schedule.Coins,
				Mode:      mode,
				Limit:     cfg.Analysis.ExportLimit,
				OutputDir: cfg.Schedule.OutputDir,
			})
			if err := sched.Register(); err != nil {
				return err
			}
			if err := sched.RegisterPurge(cfg.Cache.PurgeCron, opts.app.store); err != nil {
				return err
			}
			if runNow {
				if _, err := sched.RunNow(); err != nil {
					log.Error().Err(err).Msg("initial export failed")
				}
			}
			sched.Start()

			if tn != nil {
				go tn.StartPolling(ctx, sched.HandleCommand)
				log.Info().Msg("telegram polling started")
			}
			log.Info().Msg("BetaLens scheduler is running. Press Ctrl+C to stop.")

			<-ctx.Done()
			log.Info().Msg("shutdown signal received, stopping...")
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", os.Getenv("RUN_ON_START") == "true", "Run one export before waiting for the schedule")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.app.cfg
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.NewServer(server.Config{
				Addr:           addr,
				RequestTimeout: cfg.Server.RequestTimeout,
				ExportLimit:    cfg.Analysis.ExportLimit,
			}, opts.app.service, opts.app.directory, opts.app.registry)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; empty uses server.addr")
	return cmd
}
