// marketd — financial data aggregation backend.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/altamarfin/marketd/api"
	"github.com/altamarfin/marketd/internal/config"
	"github.com/altamarfin/marketd/internal/fallback"
	"github.com/altamarfin/marketd/internal/indicators"
	"github.com/altamarfin/marketd/internal/news"
	"github.com/altamarfin/marketd/internal/provider"
	"github.com/altamarfin/marketd/internal/providers/alphavantage"
	"github.com/altamarfin/marketd/internal/providers/yahoo"
	"github.com/altamarfin/marketd/internal/quote"
	"github.com/altamarfin/marketd/internal/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

// indexNames maps monitored index symbols to display names.
var indexNames = map[string]string{
	"^GSPC":  "S&P 500",
	"^DJI":   "Dow Jones",
	"^IXIC":  "NASDAQ",
	"^FTSE":  "FTSE 100",
	"^GDAXI": "DAX",
	"^BVSP":  "Bovespa",
	"^IBEX":  "IBEX 35",
	"^N225":  "Nikkei 225",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketd",
	Short: "marketd — stock quotes, indices, indicators and news aggregation",
	Long: `marketd aggregates financial market data behind one HTTP API:
stock quotes with cache and background polling, global indices,
Banco Central de Chile indicators, and financial news.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketd %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API server + pollers) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and background pollers",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := buildLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := buildStore(ctx, log)
		if err != nil {
			return err
		}

		providers := buildProviders()
		log.Info("providers configured", zap.Int("count", len(providers)))

		stocks := quote.New(familyConfig("stocks", cfg.Stocks, nil), providers,
			fallback.New(fallback.StockBaselines, cfg.Stocks.JitterPct, fallback.WithRandomVolume()), st, log)
		indices := quote.New(familyConfig("indices", cfg.Indices, indexNames), providers,
			fallback.New(fallback.IndexBaselines, cfg.Indices.JitterPct), st, log)

		var fetcher indicators.Fetcher
		if cfg.Indicators.User != "" && cfg.Indicators.Password != "" {
			fetcher = indicators.NewSieteClient(cfg.Indicators.BaseURL, cfg.Indicators.User, cfg.Indicators.Password)
		} else {
			log.Warn("indicator credentials not configured, serving fallback data")
		}
		ind := indicators.NewService(fetcher, st,
			time.Duration(cfg.Indicators.CacheTTLSec)*time.Second, log)

		collector := news.NewCollector(nil, cfg.News.MaxPerFeed, log)

		srv := api.NewServer(cfg, stocks, indices, ind, collector, log)

		// Poll results stream to connected websocket clients.
		stocks.SetUpdateHook(srv.Hub().BroadcastQuote)
		indices.SetUpdateHook(srv.Hub().BroadcastQuote)

		go stocks.Run(ctx)
		go indices.Run(ctx)
		go collector.Run(ctx, time.Duration(cfg.News.RefreshMin)*time.Minute)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		return srv.ListenAndServe(ctx, addr)
	},
}

// --- Quote Command (one-off lookup) ---

var quoteCmd = &cobra.Command{
	Use:   "quote [symbol]",
	Short: "Fetch a single quote and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := buildLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		index, _ := cmd.Flags().GetBool("index")

		family, fc, baselines := "stocks", cfg.Stocks, fallback.StockBaselines
		genOpts := []fallback.Option{fallback.WithRandomVolume()}
		var names map[string]string
		if index {
			family, fc, baselines = "indices", cfg.Indices, fallback.IndexBaselines
			names = indexNames
			genOpts = nil
		}

		svc := quote.New(familyConfig(family, fc, names), buildProviders(),
			fallback.New(baselines, fc.JitterPct, genOpts...), store.NewMemory(), log)

		ctx, cancel := context.WithTimeout(context.Background(), fc.FetchTimeout())
		defer cancel()

		q := svc.GetQuote(ctx, args[0])
		out, err := json.MarshalIndent(q, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	quoteCmd.Flags().Bool("index", false, "treat the symbol as a market index")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  marketd — Configuration")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:      %s (%s)\n", version, commit)
		fmt.Printf("  API Server:   %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("  Cache:        %s\n", cfg.Cache.Backend)
		fmt.Println()
		fmt.Printf("  Stocks:       %d symbols, poll every %s, TTL %s\n",
			len(cfg.Stocks.Symbols), cfg.Stocks.PollInterval(), cfg.Stocks.CacheTTL())
		fmt.Printf("  Indices:      %d symbols, poll every %s, TTL %s\n",
			len(cfg.Indices.Symbols), cfg.Indices.PollInterval(), cfg.Indices.CacheTTL())
		fmt.Println()

		avKey := "not set (yahoo only)"
		if cfg.Providers.AlphaVantageKey != "" {
			avKey = "set"
		}
		fmt.Printf("  Alpha Vantage key:        %s\n", avKey)

		bcCreds := "not set (fallback data)"
		if cfg.Indicators.User != "" && cfg.Indicators.Password != "" {
			bcCreds = "set"
		}
		fmt.Printf("  Banco Central credentials: %s\n", bcCreds)
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

// --- Wiring helpers ---

// buildProviders assembles the provider chain in priority order. Yahoo
// is always first; Alpha Vantage joins only when a key is configured.
func buildProviders() []provider.Client {
	var yopts []yahoo.Option
	if cfg.Providers.YahooBaseURL != "" {
		yopts = append(yopts, yahoo.WithBaseURL(cfg.Providers.YahooBaseURL))
	}
	if cfg.Stocks.FetchTimeoutSec > 0 {
		yopts = append(yopts, yahoo.WithTimeout(cfg.Stocks.FetchTimeout()))
	}

	providers := []provider.Client{yahoo.New(yopts...)}
	if cfg.Providers.AlphaVantageKey != "" {
		providers = append(providers, alphavantage.New(cfg.Providers.AlphaVantageKey))
	}
	return providers
}

// buildStore selects the quote store backend. Redis falls back to the
// in-memory store when unreachable rather than refusing to start.
func buildStore(ctx context.Context, log *zap.Logger) (store.Store, error) {
	if cfg.Cache.Backend != "redis" {
		return store.NewMemory(), nil
	}

	r := store.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, log)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, using in-memory store",
			zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		return store.NewMemory(), nil
	}
	log.Info("using redis store", zap.String("addr", cfg.Cache.RedisAddr))
	return r, nil
}

// familyConfig maps a config family onto quote service parameters.
func familyConfig(family string, fc config.FamilyConfig, names map[string]string) quote.Config {
	return quote.Config{
		Family:         family,
		Symbols:        fc.Symbols,
		Names:          names,
		CacheTTL:       fc.CacheTTL(),
		PollInterval:   fc.PollInterval(),
		InitialDelay:   fc.InitialDelay(),
		MinRequestGap:  time.Duration(fc.MinRequestGapSec) * time.Second,
		MaxRequestGap:  time.Duration(fc.MaxRequestGapSec) * time.Second,
		Cooldown:       fc.Cooldown(),
		BatchLimit:     fc.BatchLimit,
		FallbackOnMiss: fc.FallbackOnMiss,
		CacheFallback:  fc.CacheFallback,
		RealDataOnly:   fc.RealDataOnly,
	}
}

// buildLogger constructs the zap logger per the logging config.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}
