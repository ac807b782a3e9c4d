package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spsync/application"
	"spsync/database"
	"spsync/domain/contracts"
	"spsync/infrastructure/config"
	"spsync/infrastructure/posture"
	"spsync/infrastructure/repositories"
	"spsync/infrastructure/spclient"
	"spsync/interfaces/web/handlers"
	"spsync/logging"
	"spsync/platform/tasks"
	"spsync/platform/workflows"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spsync",
		Short: "SharePoint permission sync connector",
	}
	rootCmd.AddCommand(serveCmd(), syncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// App holds the wired application.
type App struct {
	Cfg          *config.AppConfig
	Logger       *logging.Logger
	DB           *database.Database
	Orgs         contracts.OrganisationRepository
	Runner       *tasks.Runner
	Orchestrator *workflows.Orchestrator
	SyncService  application.SyncService
	Handlers     *handlers.SyncHandlers
}

func loadEnvironment() {
	if err := godotenv.Load(); err != nil {
		println("No .env file found, using environment variables")
	} else {
		println("Loaded configuration from .env file")
	}
}

// buildApp wires every layer. Both commands share this so operator-driven
// syncs run through exactly the service path the server uses.
func buildApp() (*App, error) {
	loadEnvironment()
	cfg := config.LoadAppConfigFromEnv()

	logger := logging.NewLogger(cfg.Logging)
	logging.SetDefault(logger)
	logger.Info("Application starting",
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
		"db_path", cfg.Database.Path)

	db, err := database.New(*cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	orgRepo := repositories.NewOrganisationRepository(db, logger)
	stateRepo := repositories.NewDriveSyncStateRepository(db, logger)
	providerFactory := spclient.NewFactory(cfg.Provider, nil, logger)
	postureClient := posture.New(cfg.Posture, logger)

	runner := tasks.NewRunner(tasks.Config{
		Workers:        cfg.Scheduler.Workers,
		OrgConcurrency: cfg.Scheduler.OrgConcurrency,
		MaxAttempts:    cfg.Scheduler.MaxTaskAttempts,
	}, logger)

	wf := workflows.New(workflows.Config{
		SignalWaitTimeout:   cfg.Scheduler.SignalWaitTimeout,
		PermissionFetchSize: cfg.Provider.PermissionFetchSize,
		SubscriptionTTL:     cfg.Provider.SubscriptionTTL,
		NotificationURL:     cfg.Provider.NotificationURL,
	}, orgRepo, stateRepo, providerFactory, postureClient, runner, runner.Signals(), logger)
	wf.Register(runner)

	orchestrator := workflows.NewOrchestrator(workflows.OrchestratorConfig{
		FullSyncInterval: cfg.Scheduler.FullSyncInterval,
		RenewalInterval:  cfg.Scheduler.RenewalInterval,
		RenewalWindow:    cfg.Scheduler.RenewalWindow,
	}, orgRepo, stateRepo, runner, logger)

	syncService := application.NewSyncService(
		application.SyncServiceConfig{SignalWaitTimeout: cfg.Scheduler.SignalWaitTimeout},
		orgRepo, stateRepo, providerFactory, postureClient, runner, runner.Signals(), runner, logger)

	return &App{
		Cfg:          cfg,
		Logger:       logger,
		DB:           db,
		Orgs:         orgRepo,
		Runner:       runner,
		Orchestrator: orchestrator,
		SyncService:  syncService,
		Handlers:     handlers.NewSyncHandlers(syncService, db),
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the connector: task workers, scheduler and HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.DB.Close()

			appCtx, appCancel := context.WithCancel(context.Background())
			defer appCancel()

			app.Runner.Start(appCtx)
			go app.Orchestrator.Run(appCtx)

			router := setupRouter(app)
			return startServer(router, app, appCancel)
		},
	}
}

func syncCmd() *cobra.Command {
	var orgID string
	var first bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a full crawl for one organisation and process it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.DB.Close()

			appCtx, appCancel := context.WithCancel(context.Background())
			defer appCancel()
			app.Runner.Start(appCtx)

			if first {
				org, err := app.Orgs.GetByID(appCtx, orgID)
				if err != nil {
					return err
				}
				if org == nil {
					app.Logger.Error("organisation not found", "org_id", orgID)
					os.Exit(1)
				}
				if err := app.SyncService.InstallOrganisation(appCtx, org); err != nil {
					return err
				}
			} else {
				if err := app.SyncService.StartFullSync(appCtx, orgID); err != nil {
					return err
				}
			}

			app.Logger.Sync("sync triggered, processing until interrupted", orgID)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			appCancel()
			app.Runner.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organisation id to sync")
	cmd.Flags().BoolVar(&first, "first", false, "run the first-sync variant")
	cmd.MarkFlagRequired("org")
	return cmd
}

func setupRouter(app *App) *chi.Mux {
	r := chi.NewRouter()
	setupHTTPLogging(r, app)
	r.Use(middleware.Recoverer)
	app.Handlers.RegisterRoutes(r)
	return r
}

func setupHTTPLogging(r *chi.Mux, app *App) {
	if app.Cfg.HTTPLogPath == "" {
		return
	}

	logFile, err := os.OpenFile(app.Cfg.HTTPLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		app.Logger.Error("Failed to open HTTP log file", "error", err, "path", app.Cfg.HTTPLogPath)
		return
	}
	// Note: logFile stays open for the server lifetime

	httpLogger := httplog.NewLogger("spsync", httplog.Options{
		Writer: logFile,
		JSON:   true,
	})
	r.Use(httplog.RequestLogger(httpLogger))

	app.Logger.Info("HTTP request logging enabled", "path", app.Cfg.HTTPLogPath)
}

func startServer(router *chi.Mux, app *App, appCancel context.CancelFunc) error {
	server := &http.Server{Addr: app.Cfg.HTTPAddr, Handler: router}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sig
		app.Logger.Info("Shutdown signal received")

		// Cancel the app context first so workers stop picking up tasks
		appCancel()

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 30*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				app.Logger.Error("Graceful shutdown timed out, forcing exit")
				os.Exit(1)
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server shutdown error", "error", err)
			os.Exit(1)
		}
		app.Runner.Stop()
		serverStopCtx()
	}()

	app.Logger.Info("Server starting", "address", app.Cfg.HTTPAddr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		app.Logger.Error("Server failed", "error", err)
		return err
	}

	<-serverCtx.Done()
	app.Logger.Info("Server stopped")
	return nil
}
