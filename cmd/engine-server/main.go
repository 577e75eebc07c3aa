package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fairstack/engine-go/internal/api"
	"github.com/fairstack/engine-go/internal/auth"
	"github.com/fairstack/engine-go/internal/config"
	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/replay"
	"github.com/fairstack/engine-go/internal/seeds"
	"github.com/fairstack/engine-go/internal/settle"
	"github.com/fairstack/engine-go/internal/store"
	"github.com/fairstack/engine-go/internal/verify"
)

func main() {
	logger := log.New(os.Stdout, "[ENGINE] ", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	registry := seeds.NewRegistry(db)
	seed, err := registry.EnsureChain(cfg.ChainID)
	if err != nil {
		return err
	}
	logger.Printf("seed chain %s active, commitment=%s", cfg.ChainID, seed.Commitment)

	controller, err := control.NewController(db)
	if err != nil {
		return err
	}

	gameReg, err := games.NewRegistry(games.Options{
		RTP:             cfg.RTP,
		HouseEdgeFactor: cfg.HouseEdgeFactor,
	})
	if err != nil {
		return err
	}

	ledger := settle.NewLedger()
	coordinator := settle.NewCoordinator(registry, controller, gameReg, db, ledger, cfg.MaxProbes)

	var authn *auth.Authenticator
	if cfg.AdminEnabled() {
		authn = auth.New(cfg.AdminJWTSecret)
	} else {
		logger.Printf("ENGINE_ADMIN_JWT_SECRET not set; admin surface disabled")
	}

	server := api.NewServer(api.Deps{
		DB:          db,
		Coordinator: coordinator,
		Registry:    registry,
		Controller:  controller,
		Games:       gameReg,
		Verifier:    verify.NewService(db, gameReg),
		Scanner:     replay.NewScanner(gameReg),
		Ledger:      ledger,
		Auth:        authn,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
