package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"tfassist/app/config"
	"tfassist/app/usecase"
	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/events"
	"tfassist/internal/infrastructure/llm"
	"tfassist/internal/infrastructure/metrics"
	"tfassist/internal/infrastructure/store/filesystem"
	"tfassist/internal/infrastructure/store/memory"
	mongorepo "tfassist/internal/infrastructure/store/mongodb"
	"tfassist/internal/infrastructure/terraform"
	"tfassist/internal/infrastructure/transport"
	"tfassist/internal/infrastructure/validator"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.String("host", "", "listen host (default 127.0.0.1)")
	flags.Int("port", 0, "listen port (default 8000)")
	_ = v.BindPFlag("server.host", flags.Lookup("host"))
	_ = v.BindPFlag("server.port", flags.Lookup("port"))
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Generation backend, loaded once for the process
	generator, err := llm.New(llm.Settings{
		Backend: cfg.LLM.Backend,
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	if err := generator.Load(ctx); err != nil {
		return fmt.Errorf("load generator: %w", err)
	}
	defer func() {
		if err := generator.Close(); err != nil {
			logger.Error("generator close error", "err", err)
		}
	}()

	// Terraform CLI
	if cfg.Terraform.PluginCacheDir != "" {
		if err := os.MkdirAll(cfg.Terraform.PluginCacheDir, 0o755); err != nil {
			return fmt.Errorf("create plugin cache dir: %w", err)
		}
	}
	runner := terraform.NewCLI(terraform.Options{
		Binary:          cfg.Terraform.Binary,
		InitTimeout:     cfg.Terraform.InitTimeout,
		ValidateTimeout: cfg.Terraform.ValidateTimeout,
		PluginCacheDir:  cfg.Terraform.PluginCacheDir,
	}, logger)
	if err := runner.CheckInstalled(); err != nil {
		// validation requests fail with a tool invocation error until it is installed
		logger.Warn("terraform not available", "err", err)
	}

	workspaces, err := filesystem.NewWorkspaceRepository(cfg.Terraform.Workdir, cfg.Terraform.KeepWorkspaces)
	if err != nil {
		return fmt.Errorf("init workspace repo: %w", err)
	}
	logger.Info("workspace root ready", "path", workspaces.BasePath(), "keep", cfg.Terraform.KeepWorkspaces)

	// History store: Mongo when configured, memory otherwise
	var records repository.RecordRepository
	if cfg.Mongo.URI != "" {
		mongoCtx, mongoCancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
		defer mongoCancel()
		mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("disconnecting mongo")
			if err := mongoClient.Disconnect(disconnectCtx); err != nil {
				logger.Error("mongo disconnect error", "err", err)
			}
		}()
		if err := mongoClient.Ping(mongoCtx, nil); err != nil {
			return fmt.Errorf("mongo ping: %w", err)
		}
		repo, err := mongorepo.NewMongoRecordRepo(mongoCtx, mongoClient.Database(cfg.Mongo.Database))
		if err != nil {
			return err
		}
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		records = repo
	} else {
		records = memory.NewRecordRepo(cfg.History.Capacity)
		logger.Info("using in-memory history", "capacity", cfg.History.Capacity)
	}

	// Event fan-out
	hub := events.NewHub(logger)
	notifiers := []repository.RecordNotifier{hub}
	if cfg.AMQP.URL != "" {
		publisher, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.ConnectAttempts, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	// Usecases / services
	historySvc := usecase.NewHistoryService(records, notifiers, logger)
	terraformSvc := usecase.NewTerraformService(
		generator,
		runner,
		workspaces,
		validator.NewTerraformAnalyzer(),
		historySvc,
		usecase.ServiceOptions{
			CommentLanguage: cfg.Prompt.CommentLanguage,
			Generation: entity.GenerationOptions{
				MaxLength:          cfg.LLM.MaxLength,
				NumReturnSequences: 1,
			},
		},
		logger,
	)

	// Router and server
	handler := transport.NewTerraformHandler(terraformSvc, historySvc, hub, logger, cfg.Server.MaxBodyBytes)
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(corsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	servers := []*http.Server{srv}
	if cfg.Metrics.Addr != "" {
		servers = append(servers, metrics.NewMetricsServer(cfg.Metrics.Addr))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	for _, s := range servers {
		s := s
		g.Go(func() error {
			logger.Info("starting HTTP server", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "addr", s.Addr, "err", err)
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("service stopped")
	return err
}
