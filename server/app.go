package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"antsupport/config"
	"antsupport/internal/db"
	"antsupport/internal/devices"
	"antsupport/internal/health"
	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/middleware"
	"antsupport/internal/models"
	"antsupport/internal/problems"
	"antsupport/internal/remotes"
	"antsupport/internal/sessions"
	"antsupport/internal/tvscreens"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db       *gorm.DB
	sessRepo *sessions.Store
	ctx      context.Context
	cancel   context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально)
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
	}

	// ---- DB migrations (only if DB is connected) ----
	var caps db.Capabilities
	if a.db != nil {
		if err := a.db.AutoMigrate(
			&models.Device{},
			&models.Problem{},
			&models.DiagnosticStep{},
			&models.DiagnosticSession{},
			&models.SessionStep{},
			&models.Remote{},
			&models.TVInterface{},
			&models.TVInterfaceMark{},
		); err != nil {
			logs.Logger.Errorf("automigrate: %v", err)
		}
		if err := db.MigrateStepNumberIndex(a.db); err != nil {
			logs.Logger.Warnf("step number index migration: %v", err)
		}
		if err := db.MigrateSearchIndexes(a.db); err != nil {
			logs.Logger.Warnf("search index migration: %v", err)
		}
		// слепок опциональных колонок — один раз, не на каждый запрос
		caps = db.ResolveCapabilities(a.db)
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	a.RegisterWebUI("/ui/")

	// 4) Health маршруты
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db)
	} else {
		health.RegisterRoutes(a.Router)
	}

	// 5) Доменные сторы и их HTTP-ручки
	if a.db != nil {
		ids := ident.NewUUID()

		devRepo := devices.NewStore(a.db, ids)
		devices.NewHTTP(devRepo).RegisterRoutes(a.Router)

		probRepo := problems.NewStore(a.db, ids)
		problems.NewHTTP(probRepo).RegisterRoutes(a.Router)

		a.sessRepo = sessions.NewStore(a.db, ids)
		sessions.NewHTTP(a.sessRepo).RegisterRoutes(a.Router)

		remRepo := remotes.NewStore(a.db, ids)
		remotes.NewHTTP(remRepo).RegisterRoutes(a.Router)

		ifaceRepo := tvscreens.NewStore(a.db, ids, caps)
		markRepo := tvscreens.NewMarkStore(a.db, ids, caps)
		tvscreens.NewHTTP(ifaceRepo, markRepo).RegisterRoutes(a.Router)

		a.registerMaintenance()
	}

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

// registerMaintenance — ручной запуск оптимизатора (вне пути запросов мастера).
func (a *App) registerMaintenance() {
	a.Router.HandleFunc("/api/v1/maintenance/optimize", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		rep, err := db.NewOptimizer(a.db).Run()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}).Methods(http.MethodPost)
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	// фоновый свип брошенных/старых сессий
	if a.sessRepo != nil && a.cfg.Sessions.SweepInterval > 0 {
		go a.sweepSessions()
	}

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

func (a *App) sweepSessions() {
	t := time.NewTicker(a.cfg.Sessions.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			rep, err := a.sessRepo.CleanupOldSessions(a.cfg.Sessions.AbandonAfter, a.cfg.Sessions.Retention)
			if err != nil {
				logs.Logger.Warnf("свип сессий: %v", err)
				continue
			}
			if rep.Abandoned > 0 || rep.Purged > 0 {
				logs.Logger.Infof("свип сессий: брошено %d, удалено %d", rep.Abandoned, rep.Purged)
			}
		}
	}
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
