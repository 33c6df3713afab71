package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caseguard.org/internal/authz"
	"caseguard.org/internal/httpapi"
	"caseguard.org/internal/obs"
	"caseguard.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("CASEGUARD_PG_DSN")
	if dsn == "" {
		log.Fatal("missing CASEGUARD_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	resolver, err := authz.NewResolver(store, 512)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	engine, err := authz.NewEngine(store, resolver)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	guard, err := authz.NewGuard(engine)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	sharing, err := authz.NewSharingService(store)
	if err != nil {
		log.Fatalf("sharing service: %v", err)
	}
	rbac, err := authz.NewRBACService(store, resolver)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := rbac.SeedCatalog(seedCtx); err != nil {
		seedCancel()
		log.Fatalf("ensure role catalog: %v", err)
	}
	seedCancel()

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, sharing, rbac, guard)

	addr := os.Getenv("CASEGUARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting caseguard-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	api.Close()
	log.Println("Stopped")
}
