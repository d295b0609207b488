package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/remindd/internal/database"
	"github.com/dukerupert/remindd/internal/logging"
	"github.com/dukerupert/remindd/internal/notify"
	"github.com/dukerupert/remindd/internal/reminder"
	"github.com/dukerupert/remindd/internal/remote"
	"github.com/dukerupert/remindd/internal/replay"
	"github.com/dukerupert/remindd/internal/secrets"
	"github.com/dukerupert/remindd/internal/server"
	"github.com/dukerupert/remindd/internal/store"
	"github.com/dukerupert/remindd/internal/suspend"
	ws "github.com/dukerupert/remindd/internal/websocket"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("REMINDD_LOG_LEVEL"), os.Getenv("REMINDD_LOG_FORMAT"))

	port := envOr("REMINDD_PORT", "8484")
	dbPath := envOr("REMINDD_DB_PATH", "remindd.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reminderStore := store.NewReminderStore(db)
	listStore := store.NewListStore(db)
	queueStore := store.NewQueueStore(db)
	hub := ws.NewHub(logger.With("component", "websocket"))

	// The notifier's completion action needs the service, which needs the
	// notifier; the indirection breaks the cycle.
	var svc *reminder.Service
	onComplete := func(reminderID string) {
		if svc == nil {
			return
		}
		if _, err := svc.SetCompleted(reminderID, true); err != nil {
			logger.Warn("complete from notification", "reminder_id", reminderID, "error", err)
		}
	}

	var notifier notify.Notifier
	dbusNotifier, err := notify.NewDBus(onComplete, logger.With("component", "notify"))
	if err != nil {
		logger.Warn("desktop notifications unavailable", "error", err)
		notifier = notify.Nop{}
	} else {
		notifier = dbusNotifier
		defer dbusNotifier.Close()
	}

	svc = reminder.NewService(reminderStore, listStore, queueStore, notifier, hub, logger.With("component", "reminder"))

	registry := buildRegistry(logger)
	replayer := replay.New(reminderStore, listStore, queueStore, registry, logger.With("component", "replay"))
	svc.SetSyncKicker(replayer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(); err != nil {
		logger.Error("start reminder service", "error", err)
		os.Exit(1)
	}
	defer svc.Stop()

	replayer.Start(ctx)
	defer replayer.Stop()

	// Timers freeze across suspend, so deadlines must be recomputed on wake.
	watcher, err := suspend.NewWatcher(svc.ResumeFromSleep, logger.With("component", "suspend"))
	if err != nil {
		logger.Warn("sleep watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	srv := server.New(db, svc, replayer, queueStore, hub, logger.With("component", "server"))
	httpServer := &http.Server{
		Addr:         "127.0.0.1:" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("remindd listening", "addr", httpServer.Addr, "version", server.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// buildRegistry wires the configured remote accounts. Credentials come
// from the platform secret store keyed by account id; an account whose
// secret is missing is skipped with a warning rather than aborting startup.
func buildRegistry(logger *slog.Logger) *remote.Registry {
	registry := remote.NewRegistry()

	caldavURL := os.Getenv("REMINDD_CALDAV_URL")
	caldavAccount := os.Getenv("REMINDD_CALDAV_ACCOUNT")
	mstodoAccount := os.Getenv("REMINDD_MSTODO_ACCOUNT")
	if caldavAccount == "" && mstodoAccount == "" {
		return registry
	}

	secretStore, err := secrets.Open()
	if err != nil {
		logger.Warn("secret store unavailable, remote accounts disabled", "error", err)
		return registry
	}

	if caldavAccount != "" && caldavURL != "" {
		password, err := secretStore.LookupAccount(caldavAccount)
		if err != nil {
			logger.Warn("caldav credential lookup failed, account disabled",
				"account", caldavAccount, "error", err)
		} else {
			registry.Register(caldavAccount, remote.NewCalDAVClient(remote.CalDAVConfig{
				BaseURL:  caldavURL,
				Username: envOr("REMINDD_CALDAV_USERNAME", caldavAccount),
				Password: password,
			}))
			logger.Info("caldav account registered", "account", caldavAccount)
		}
	}

	if mstodoAccount != "" {
		// Token lookup runs per request so a refreshed secret takes effect
		// without a restart.
		registry.Register(mstodoAccount, remote.NewMSToDoClient(remote.MSToDoConfig{
			Token: func(ctx context.Context) (string, error) {
				return secretStore.LookupAccount(mstodoAccount)
			},
		}))
		logger.Info("microsoft to do account registered", "account", mstodoAccount)
	}

	return registry
}
