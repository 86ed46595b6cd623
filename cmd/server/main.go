package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Skufu/MeddyPal/internal/api"
	"github.com/Skufu/MeddyPal/internal/assistant"
	"github.com/Skufu/MeddyPal/internal/config"
	"github.com/Skufu/MeddyPal/internal/engine"
	"github.com/Skufu/MeddyPal/internal/platform/db"
	"github.com/Skufu/MeddyPal/internal/platform/logger"
	"github.com/Skufu/MeddyPal/internal/platform/middleware"
	"github.com/Skufu/MeddyPal/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "meddypal",
		Short:        "MeddyPal health recommendation service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recommendCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	gin.SetMode(cfg.GinMode)
	log := logger.New(cfg.Env, cfg.LogLevel)

	eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	log.Info().Str("rules_version", eng.Rules().Version).Msg("rule table loaded")

	var (
		health   db.HealthChecker
		profiles store.ProfileRepository
		events   store.EventRepository
	)
	if cfg.EnableDB {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		health = pool
		profiles = store.NewProfileRepoPG(pool)
		events = store.NewEventRepoPG(pool)
		log.Info().Msg("connected to database")
	} else {
		mem := store.NewMemory()
		profiles, events = mem.Profiles(), mem.Events()
		log.Warn().Msg("ENABLE_DB=false, using in-memory storage")
	}

	var composer assistant.Composer = assistant.Canned{}
	if cfg.AIEnabled() {
		gemini, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Warn().Err(err).Msg("gemini unavailable, using canned replies")
		} else {
			composer = gemini
			log.Info().Str("model", cfg.GeminiModel).Msg("gemini composer enabled")
		}
	}

	staticRoot := cfg.StaticRoot
	if staticRoot == "" {
		staticRoot = api.DetectStaticRoot()
	}

	handler := api.NewHandler(eng, profiles, events, composer, log)
	router := api.NewRouter(handler, health, api.RouterConfig{
		Auth: middleware.AuthConfig{
			Secret:           cfg.JWTSecret,
			AllowDevIdentity: cfg.IsDevelopment(),
		},
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		StaticRoot:     staticRoot,
		TrustedProxies: cfg.TrustedProxies,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
	return waitForShutdown(server, errCh, log)
}

func buildEngine(cfg *config.Config, log zerolog.Logger) (*engine.Engine, error) {
	var (
		rules *engine.Rules
		err   error
	)
	if cfg.RulesFile != "" {
		rules, err = engine.LoadRules(cfg.RulesFile)
	} else {
		rules, err = engine.DefaultRules()
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return engine.New(rules, engine.WithMaxRecommendations(cfg.MaxRecommendations), engine.WithLogger(log))
}

func waitForShutdown(server *http.Server, errCh <-chan error, log zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := migrator.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				state := "pending"
				if s.Applied && s.AppliedAt != nil {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%03d  %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
}

func recommendCmd() *cobra.Command {
	var (
		file      string
		rulesFile string
		at        string
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Run the recommendation pipeline on a JSON request",
		Long: "Reads {freeText, profile, events, maxRecommendations} from --file or stdin " +
			"and prints the assembled response.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runRecommend(in, cmd.OutOrStdout(), rulesFile, at)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON file (default stdin)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule table YAML (default embedded)")
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this RFC3339 time (default now)")
	return cmd
}

func runRecommend(in io.Reader, out io.Writer, rulesFile, at string) error {
	var (
		rules *engine.Rules
		err   error
	)
	if rulesFile != "" {
		rules, err = engine.LoadRules(rulesFile)
	} else {
		rules, err = engine.DefaultRules()
	}
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	eng, err := engine.New(rules)
	if err != nil {
		return err
	}

	var req engine.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil && err != io.EOF {
		return fmt.Errorf("decode request: %w", err)
	}
	if at != "" {
		if req.At, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(eng.Respond(req))
}
