package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"satroute/internal/api"
	"satroute/internal/config"
	"satroute/internal/deposit"
	"satroute/internal/lnurl"
	"satroute/internal/logging"
	"satroute/internal/quote"
	"satroute/internal/router"
	"satroute/internal/store"
	"satroute/internal/wallet"
)

func printStats(st *store.SQLiteStore) {
	ctx := context.Background()
	stats, err := st.GetStats(ctx)
	if err != nil {
		logging.Internal.Fatalf("failed to get stats: %v", err)
	}

	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           satroute Statistics            ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Payments:        %-22d║\n", stats.TotalPayments)
	fmt.Printf("║  ├─ Sent:         %-22d║\n", stats.SentPayments)
	fmt.Printf("║  └─ Failed:       %-22d║\n", stats.FailedPayments)
	fmt.Printf("║  Sats sent:       %-22d║\n", stats.SentSats)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Deposits:        %-22d║\n", stats.TotalDeposits)
	fmt.Printf("║  ├─ Confirmed:    %-22d║\n", stats.ConfirmedDeposits)
	fmt.Printf("║  └─ Sats in:      %-22d║\n", stats.DepositedSats)
	fmt.Println("╚══════════════════════════════════════════╝")
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9737", "HTTP listen address")
	dbPath := flag.String("db", "satroute.db", "SQLite database path")
	showStats := flag.Bool("stats", false, "Show ledger statistics and exit")
	devMode := flag.Bool("dev", false, "Development mode: auto-settling deposits, no CORS or rate limits")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated list of allowed CORS origins (empty allows all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Internal.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		logging.Internal.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	if *showStats {
		printStats(st)
		return
	}

	// Backend registry. The Cashu backend is always present; NWC and
	// Breez join when their credentials are configured. The protocol
	// implementations live behind the Backend interface; this build
	// ships mocks, so everything above that boundary runs for real.
	cashu := wallet.NewMockBackend(wallet.BackendCashu, cfg.MockBalanceSats)
	backends := []wallet.Backend{cashu}
	if cfg.CashuMintURL != "" {
		logging.Internal.Printf("cashu mint: %s", cfg.CashuMintURL)
	}
	if cfg.NWCConnectionURI != "" {
		backends = append(backends, wallet.NewMockBackend(wallet.BackendNWC, cfg.MockBalanceSats))
		logging.Internal.Println("NWC backend enabled")
	}
	if cfg.BreezAPIKey != "" {
		backends = append(backends, wallet.NewMockBackend(wallet.BackendBreez, cfg.MockBalanceSats))
		logging.Internal.Println("Breez backend enabled")
	}
	if *devMode {
		cashu.SetAutoSettle(true)
		logging.Internal.Println("development mode: deposits auto-settle")
	}

	registry := wallet.NewRegistry(backends...)
	defer registry.Close()

	rt := router.New(registry, lnurl.NewResolver(), nil, st)
	if cfg.PreferredWallet != "" {
		rt.SetPolicy(cfg.PreferredWallet)
		logging.Internal.Printf("preferred wallet: %s", cfg.PreferredWallet)
	}

	// Deposits mint against the Cashu backend.
	deposits := deposit.NewManager(cashu.CreateDeposit, cashu.CheckDeposit, cashu.ConfirmDeposit, st)
	defer deposits.Close()

	// Resume polling any deposit left open by a previous run.
	if err := deposits.Recover(context.Background()); err != nil {
		logging.Internal.Printf("warning: deposit recovery failed: %v", err)
	}

	// Quote previews go through the Cashu backend too; keystroke-driven
	// input from the UI is debounced before any fetch happens.
	quotes := quote.NewEngine(cashu.Quote, nil)
	defer quotes.Close()

	handler := api.NewHandler(rt, deposits, registry, quotes)

	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Println("development mode: CORS allowing all origins")
	} else if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		corsConfig.AllowedOrigins = origins
		logging.Internal.Printf("CORS restricted to origins: %v", origins)
	}

	// Apply middleware (order: Logger -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = handler
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !*devMode {
		finalHandler = api.RateLimit(api.DefaultRateLimitConfig())(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:    *addr,
		Handler: finalHandler,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")
		deposits.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
	}()

	logging.Internal.Printf("starting walletd on %s", *addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatalf("server error: %v", err)
	}
}
