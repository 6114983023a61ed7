package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/api"
	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/config"
	dbstore "github.com/npnl/enigma-request/internal/db"
	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/logging"
	"github.com/npnl/enigma-request/internal/middleware"
	"github.com/npnl/enigma-request/internal/services"
	"github.com/npnl/enigma-request/internal/utils"
)

func main() {
	cfg, err := config.Load(".", utils.EnvOr("ENIGMA_CONFIG", ""))
	if err != nil {
		fatal(err)
	}
	log, level, err := logging.Init(cfg.Logging)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	cfg.Watch(log, func(next *config.Config) {
		level.SetLevel(logging.ParseLevel(next.Logging.Level))
		log.Info("log level updated", zap.String("level", level.String()))
	})

	commit := utils.EnvOr("ENIGMA_COMMIT", "dev")
	buildTime := utils.EnvOr("ENIGMA_BUILD_TIME", "")

	isNew, err := firstRun(cfg.Database.Path)
	if err != nil {
		log.Fatal("database check failed", zap.Error(err))
	}
	sqliteDB, err := dbstore.Open(cfg.Database.Path, cfg.Database.MigrationsDir)
	if err != nil {
		log.Fatal("database open failed", zap.Error(err))
	}
	defer func() {
		if cerr := sqliteDB.Close(); cerr != nil {
			log.Warn("failed to close sqlite db", zap.Error(cerr))
		}
	}()
	store, err := dbstore.NewStore(sqliteDB)
	if err != nil {
		log.Fatal("init sqlite store", zap.Error(err))
	}

	jwt := middleware.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	rt := api.NewRouter(api.Options{
		Store: store,
		Catalog: services.NewCatalogService(func() (catalog.Pair, error) {
			return catalog.LoadFile(cfg.Data.MetricsFile)
		}),
		Rows: services.NewRowCountService(func() (*estimate.Table, error) {
			return estimate.LoadCSV(cfg.Data.BooleanFile)
		}),
		Notifier:   services.NewLogNotifier(log.Named("notify")),
		Auth:       jwt,
		Log:        log,
		Mode:       cfg.Server.Mode,
		AdminEmail: cfg.Notify.AdminEmail,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	if isNew {
		if err := seedDirectory(cfg.Directory, store, rt.Directory(), log); err != nil {
			log.Fatal("directory import failed", zap.Error(err))
		}
	}

	mux := http.NewServeMux()
	rt.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "ENIGMA Data Request API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Frontend serving strategy (priority):
	// 1) Static build if server.static_dir is set
	// 2) Dev proxy if server.dev_frontend_url is set
	if staticDir := cfg.Server.StaticDir; staticDir != "" {
		mux.Handle("/", spaHandler(staticDir))
	} else if devURL := cfg.Server.DevFrontendURL; devURL != "" {
		if u, err := url.Parse(devURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			rp.ModifyResponse = func(res *http.Response) error {
				res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
				return nil
			}
			mux.Handle("/", rp)
		} else {
			log.Error("invalid dev frontend url", zap.String("url", devURL), zap.Error(err))
		}
	}

	var handler http.Handler = jwt.WithAuth(mux)
	handler = middleware.NoStore("/assets/", "/static/")(handler)
	handler = middleware.SecureHeaders(handler)
	handler = middleware.CORS(cfg.Server.AllowedOrigins)(handler)
	handler = middleware.RequestLogger(log)(handler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("ENIGMA request server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("commit", commit),
		zap.String("config", cfg.File()),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

// spaHandler serves files from dir and falls back to index.html so client
// routes resolve.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean))); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}

func fatal(err error) {
	_, _ = os.Stderr.WriteString("enigma-server: " + err.Error() + "\n")
	os.Exit(1)
}
