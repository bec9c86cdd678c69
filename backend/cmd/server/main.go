package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"mnemos/backend/internal/chat"
	"mnemos/backend/internal/completion"
	"mnemos/backend/internal/knowledge"
	"mnemos/backend/internal/router"
	"mnemos/backend/internal/session"
	"mnemos/backend/pkg/config"
	"mnemos/backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting session gateway...")

	// Initialize dependencies
	knowledgeClient := knowledge.NewClient(cfg.KnowledgeURL)
	completionClient := completion.NewClient(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID, cfg.MaxCompletionTokens, cfg.Temperature)
	orchestrator := chat.NewOrchestrator(knowledgeClient, completionClient, cfg)
	registry := session.NewRegistry()
	msgRouter := router.New(orchestrator, knowledgeClient, cfg)

	// Warn early if the Knowledge Service is unreachable; the gateway still
	// starts, since retrieval degrades gracefully per request.
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := knowledgeClient.Health(healthCtx); err != nil {
		log.Warn("Knowledge service unreachable at startup", zap.Error(err))
	}
	healthCancel()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(ginLogger(log))
	engine.Use(gin.Recovery())

	// CORS middleware
	engine.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Real-time protocol endpoint
	engine.GET("/ws", router.HandleWebSocket(registry, msgRouter))

	// Thin pass-through surface around the core
	api := engine.Group("/api")
	{
		api.GET("/stats", func(c *gin.Context) {
			ctx := c.Request.Context()

			var stats knowledge.Stats
			var healthy bool
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				healthy = knowledgeClient.Health(gctx) == nil
				return nil
			})
			g.Go(func() error {
				s, err := knowledgeClient.GetStats(gctx)
				if err != nil {
					return err
				}
				stats = s
				return nil
			})
			if err := g.Wait(); err != nil {
				log.Error("Failed to fetch knowledge stats", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "knowledge service unavailable"})
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"knowledge_healthy": healthy,
				"knowledge_stats":   stats,
				"live_sessions":     registry.Count(),
			})
		})

		api.GET("/sessions", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"count":    registry.Count(),
				"sessions": registry.IDs(),
			})
		})

		api.POST("/documents", func(c *gin.Context) {
			var req struct {
				Content string `json:"content" binding:"required"`
				Source  string `json:"source" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := knowledgeClient.IngestDocument(c.Request.Context(), req.Content, req.Source)
			if err != nil {
				log.Error("Document ingestion failed", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "document ingestion failed"})
				return
			}
			c.JSON(http.StatusOK, result)
		})

		api.GET("/topics/:name", func(c *gin.Context) {
			raw, err := knowledgeClient.ExploreTopic(c.Request.Context(), c.Param("name"), cfg.GraphQueryLimit)
			if err != nil {
				log.Error("Topic exploration failed", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "topic exploration failed"})
				return
			}
			c.Data(http.StatusOK, "application/json", raw)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
