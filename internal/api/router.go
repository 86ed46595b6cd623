package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/MeddyPal/internal/platform/db"
	"github.com/Skufu/MeddyPal/internal/platform/middleware"
)

type RouterConfig struct {
	Auth           middleware.AuthConfig
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	BodyLimit      int64
	// StaticRoot holds the SPA build. Empty disables static serving.
	StaticRoot string
	// TrustedProxies may set X-Forwarded-For. Empty means the client IP is always the
	// remote address.
	TrustedProxies []string
}

// NewRouter wires middleware, health probes, the JSON API and the static frontend.
// db may be nil when the service runs without a database.
func NewRouter(h *Handler, database db.HealthChecker, cfg RouterConfig, log zerolog.Logger) *gin.Engine {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = middleware.DefaultBodyLimit
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Msg("invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.BodyLimit(cfg.BodyLimit),
		cors.New(corsConfig(cfg.CORSOrigins)),
	)

	if cfg.StaticRoot != "" {
		router.Static("/static", cfg.StaticRoot)
		router.StaticFile("/", filepath.Join(cfg.StaticRoot, "index.html"))
		router.StaticFile("/styles.css", filepath.Join(cfg.StaticRoot, "styles.css"))
		router.StaticFile("/app.js", filepath.Join(cfg.StaticRoot, "app.js"))
		router.StaticFile("/config.js", filepath.Join(cfg.StaticRoot, "config.js"))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readyz(database))

	api := router.Group("/api/v1", middleware.SecurityHeaders())
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		api.Use(middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log).RateLimit())
	}
	api.POST("/recommend", h.Recommend)
	api.POST("/symptom-check", h.SymptomCheck)

	authed := api.Group("", middleware.Auth(cfg.Auth))
	authed.POST("/assistant/chat", h.Chat)
	authed.GET("/me/profile", h.GetProfile)
	authed.PUT("/me/profile", h.PutProfile)
	authed.GET("/me/events", h.ListEvents)
	authed.POST("/me/events", h.CreateEvent)
	authed.GET("/me/insights", h.Insights)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func readyz(database db.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if database == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}

// DetectStaticRoot looks for index.html in the working directory and up to two
// parents, returning "" when none has one.
func DetectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}
	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "index.html")) {
			return dir
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
