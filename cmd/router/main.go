// Command router is the AO compute-unit / memory-unit reverse-proxy
// router: it loads configuration, builds the host pool and (CU-only)
// bailout resolver, wires the proxy engine and failover trampoline (or
// redirect mode) behind the role's route table, and serves until SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ethan-GoldS/ao-sub000/internal/bailout"
	"github.com/Ethan-GoldS/ao-sub000/internal/config"
	"github.com/Ethan-GoldS/ao-sub000/internal/determine"
	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
	applog "github.com/Ethan-GoldS/ao-sub000/internal/log"
	"github.com/Ethan-GoldS/ao-sub000/internal/proxy"
	"github.com/Ethan-GoldS/ao-sub000/internal/redirect"
	"github.com/Ethan-GoldS/ao-sub000/internal/routes"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file (%v), using system environment variables", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	pool, err := hostpool.New(cfg.Hosts)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	log.Printf("host pool loaded: %d origin(s) %v", pool.Length(), pool.All())

	var bailoutResolver *bailout.Resolver
	if cfg.Role == config.RoleCU {
		bailoutResolver = bailout.NewResolver(bailout.Config{
			SurrogateURL:  cfg.Bailout.SurrogateURL,
			ProcessToHost: cfg.Bailout.ProcessToHost,
			OwnerToHost:   cfg.Bailout.OwnerToHost,
			CacheSize:     cfg.Bailout.CacheSize,
			CacheTTL:      cfg.Bailout.CacheTTL,
		})
	}

	determiner := determine.New(pool, bailoutResolver)

	routeTable := routes.CURoutes()
	if cfg.Role == config.RoleMU {
		routeTable = routes.MURoutes()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	sinkFor := func(routeLabel string) lifecycle.Sink {
		return lifecycle.NewQueuedSink(lifecycle.MultiSink{
			lifecycle.NewPrometheusSink(routeLabel),
			lifecycle.LogSink{},
		}, 1024)
	}

	switch cfg.Strategy {
	case config.StrategyRedirect:
		for _, rt := range routeTable {
			rt := rt
			mux.HandleFunc(rt.Pattern, redirect.Handler(determiner, rt.ProcessId, rt.Restream, sinkFor(rt.RouteLabel)))
		}
	default:
		engine := proxy.NewEngine(cfg.Timeouts)
		trampoline := proxy.NewTrampoline(engine, determiner)
		routes.Mount(mux, routeTable, trampoline, sinkFor)
	}

	root := proxy.WithQueue(
		applog.WithRequestLogging(applog.WithRequestID(withTotalTimeout(cfg.TotalTimeout, withServerHeaders(mux)))),
		cfg.Queue,
	)

	srv, err := buildServer(cfg, root)
	if err != nil {
		log.Fatalf("configuration error: building TLS server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("router listening on %s (role=%s strategy=%s)", cfg.ListenAddr, cfg.Role, cfg.Strategy)
		if cfg.TLS.Enabled {
			serveErr <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serveErr <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutdown signal received, draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
			os.Exit(1)
		}
	}
}

func withServerHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "ao-router/1.0")
		next.ServeHTTP(w, r)
	})
}

// withTotalTimeout caps end-to-end request handling at d (spec §5's
// "implementers SHOULD cap total wall time (recommended default: 30s)").
// It bounds the context the trampoline and engine observe; it does not by
// itself abort an in-progress write to the client.
func withTotalTimeout(d time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
