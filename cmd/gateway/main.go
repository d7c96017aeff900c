package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clads-dev/clads-gateway/internal/adapter"
	"github.com/clads-dev/clads-gateway/internal/admin"
	"github.com/clads-dev/clads-gateway/internal/bootstrap"
	"github.com/clads-dev/clads-gateway/internal/configsvc"
	"github.com/clads-dev/clads-gateway/internal/crypto"
	"github.com/clads-dev/clads-gateway/internal/dashboard"
	"github.com/clads-dev/clads-gateway/internal/proxyrt"
	"github.com/clads-dev/clads-gateway/internal/store"
	"github.com/clads-dev/clads-gateway/internal/usage"
	"github.com/clads-dev/clads-gateway/internal/version"
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 migration failure,
// 3 port bind failure.
const (
	exitConfigError      = 1
	exitMigrationFailure = 2
	exitBindFailure      = 3
)

func main() {
	dataDir := envOr("DATA_DIR", ".")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir %q: %v", dataDir, err)
	}

	dbPath := envOr("DATABASE_PATH", dataDir+"/clads_llm_bridge.db")
	keyPath := envOr("ENCRYPTION_KEY_PATH", dataDir+"/.encryption_key")

	setupSlog()

	db, err := store.Open(dbPath)
	if err != nil {
		log.Printf("❌ failed to open database: %v", err)
		os.Exit(exitMigrationFailure)
	}

	key, err := crypto.LoadOrCreateKeyFile(keyPath)
	if err != nil {
		log.Printf("❌ failed to load encryption key: %v", err)
		os.Exit(exitConfigError)
	}
	box, err := crypto.NewBox(key)
	if err != nil {
		log.Printf("❌ invalid encryption key: %v", err)
		os.Exit(exitConfigError)
	}

	configSvc, err := configsvc.New(db, box)
	if err != nil {
		log.Printf("❌ failed to load config snapshot: %v", err)
		os.Exit(exitConfigError)
	}

	if loaded, err := bootstrap.Seed(db, configSvc, bootstrap.DefaultSearchPaths()); err != nil {
		log.Printf("⚠️ upstream seed failed: %v", err)
	} else if loaded > 0 {
		log.Printf("📦 seeded %d upstream config(s)", loaded)
	}

	registry := adapter.NewRegistry(nil)
	recorder := usage.New(db, 4096)
	defer recorder.Close()

	ttfb := envDuration("UPSTREAM_TTFB_TIMEOUT", 30*time.Second)
	total := envDuration("UPSTREAM_TOTAL_TIMEOUT", 120*time.Second)
	rt := proxyrt.New(configSvc, registry, recorder, db, ttfb, total)

	adminRouter := &admin.Router{
		Config:    configSvc,
		Dashboard: dashboard.New(db),
		Recorder:  recorder,
		DB:        db,
		Password:  os.Getenv("INITIAL_PASSWORD"),
	}

	host := envOr("HOST", "127.0.0.1")
	generalPort := envOr("PROXY_PORT_GENERAL", envOr("PROXY_PORT", "4321"))
	specialPort := envOr("PROXY_PORT_SPECIAL", "4333")
	adminPort := envOr("WEB_UI_PORT", "4322")

	log.Printf("🚀 clads-gateway %s (commit %s, built %s)", version.Version, version.Commit, version.BuildTime)
	log.Printf("🔌 general proxy: http://%s:%s/v1", host, generalPort)
	log.Printf("🔌 special proxy: http://%s:%s/v1", host, specialPort)
	log.Printf("📊 admin surface: http://%s:%s", host, adminPort)

	errs := make(chan error, 3)
	go serve(errs, "general", host, generalPort, rt.Router(configsvc.EndpointGeneral))
	go serve(errs, "special", host, specialPort, rt.Router(configsvc.EndpointSpecial))
	go serve(errs, "admin", host, adminPort, adminRouter.Handler())

	if err := <-errs; err != nil {
		log.Printf("❌ %v", err)
		os.Exit(exitBindFailure)
	}
}

func serve(errs chan<- error, name, host, port string, handler http.Handler) {
	addr := host + ":" + port
	if err := http.ListenAndServe(addr, handler); err != nil {
		errs <- fmt.Errorf("%s listener on %s failed: %w", name, addr, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads key as a whole number of seconds, falling back to
// fallback when unset or unparsable.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func setupSlog() {
	level := slog.LevelInfo
	switch strings.ToUpper(envOr("LOG_LEVEL", "INFO")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
