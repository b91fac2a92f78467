package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admission/internal/auth"
	"admission/internal/config"
	"admission/internal/errs"
	"admission/internal/httpmiddleware"
	"admission/internal/metrics"
	"admission/internal/migrate"
	"admission/internal/qrcache"
	"admission/internal/queue"
	"admission/internal/scan"
	"admission/internal/store"
	"admission/internal/token"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Printf("warning: migrations failed: %v", err)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "admission:warm")
	}

	tokCfg := token.Config{
		Secret:           cfg.SigningSecret,
		RotationInterval: cfg.RotationInterval,
		GraceWindows:     cfg.GraceWindows,
		TagLen:           cfg.TagLen,
		LegacyIDTagLen:   cfg.LegacyIDTagLen,
		CompactTagLen:    cfg.CompactTagLen,
	}
	issuer := token.NewIssuer(tokCfg, nil)
	verifier := token.NewVerifier(tokCfg, nil)

	cache := qrcache.New(qrcache.NewRedisStore(redisClient.Client), qrcache.Config{
		RotationInterval: cfg.RotationInterval,
		StaticTTL:        cfg.StaticCacheTTL,
		Size:             cfg.QRSize,
		OpTimeout:        cfg.CacheTimeout,
	}, nil)

	repo := scan.NewRepository(db)
	scans := scan.NewService(repo, nil, 2)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy})
	})

	r.POST("/v1/volunteers/login", func(c *gin.Context) {
		var req struct {
			VolunteerID string `json:"volunteer_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tok, exp, err := auth.Issue(req.VolunteerID, "volunteer", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": tok,
			"expires_at":   exp.Unix(),
		})
	})

	// Seconds-until-rotation is a display helper for client countdowns;
	// intentionally unauthenticated and not security-relevant.
	r.GET("/v1/tokens/rotation", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"seconds_remaining": issuer.SecondsUntilRotation()})
	})

	r.POST("/v1/verify", func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := verifier.Verify(req.Token)
		if err != nil {
			metrics.VerifyFailuresTotal.WithLabelValues(v.Reason).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "reason": v.Reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"subject_kind": v.Kind,
			"subject_key":  v.Subject,
		})
	})

	// Renders the scannable image for a credential. The cache sits in front;
	// a cache failure only costs a re-render.
	r.GET("/v1/qr", func(c *gin.Context) {
		raw := c.Query("token")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token query param required"})
			return
		}
		v, err := verifier.Verify(raw)
		if err != nil {
			metrics.VerifyFailuresTotal.WithLabelValues(v.Reason).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "reason": v.Reason})
			return
		}
		var img []byte
		if v.Kind == token.KindStall {
			img, err = cache.RenderStatic(c.Request.Context(), raw)
		} else {
			img, err = cache.RenderRotating(c.Request.Context(), v.Subject, raw)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", img)
	})

	authGroup := r.Group("/v1", auth.VolunteerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/tokens/rotating", func(c *gin.Context) {
		var req struct {
			SubjectKey string `json:"subject_key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tok, err := issuer.IssueRotating(req.SubjectKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Warm the render cache ahead of the client's image fetch.
		if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeWarmSubject, Body: []byte(req.SubjectKey)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{
			"token":             tok,
			"seconds_remaining": issuer.SecondsUntilRotation(),
		})
	})

	authGroup.POST("/tokens/static", func(c *gin.Context) {
		var req struct {
			StallKey string `json:"stall_key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tok, err := issuer.IssueStatic(req.StallKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := repo.SaveStallCredential(c.Request.Context(), req.StallKey, tok); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "persist credential failed"})
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeWarmStall, Body: []byte(tok)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusCreated, gin.H{"token": tok})
	})

	authGroup.POST("/scans", func(c *gin.Context) {
		var req struct {
			Token   string `json:"token" binding:"required"`
			EventID string `json:"event_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := verifier.Verify(req.Token)
		if err != nil {
			metrics.VerifyFailuresTotal.WithLabelValues(v.Reason).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "reason": v.Reason})
			return
		}
		res, err := scans.RecordScan(c.Request.Context(), v.Subject, req.EventID, auth.VolunteerID(c))
		if err != nil {
			status, reason := scanErrStatus(err)
			if status == http.StatusInternalServerError {
				log.Printf("record scan: %v", err)
			}
			c.JSON(status, gin.H{"error": reason})
			return
		}
		resp := gin.H{
			"subject_kind": v.Kind,
			"subject_key":  v.Subject,
			"type":         res.Kind,
			"seq":          res.Seq,
		}
		if res.DurationSeconds != nil {
			resp["duration_seconds"] = *res.DurationSeconds
		}
		c.JSON(http.StatusOK, resp)
	})

	authGroup.GET("/scans", func(c *gin.Context) {
		limit, offset := 50, 0
		if v, err := strconv.Atoi(c.Query("limit")); err == nil {
			limit = v
		}
		if v, err := strconv.Atoi(c.Query("offset")); err == nil {
			offset = v
		}
		records, err := repo.ListRecords(c.Request.Context(), c.Query("subject_key"), c.Query("event_id"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/totals", func(c *gin.Context) {
		subject, event := c.Query("subject_key"), c.Query("event_id")
		if subject == "" || event == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject_key and event_id required"})
			return
		}
		totals, err := repo.Totals(c.Request.Context(), subject, event)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no attendance recorded"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, totals)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// scanErrStatus maps the anticipated scan failures to a status and a
// machine-readable reason. Anything outside the taxonomy is an internal
// failure; it gets a 500 and a generic reason so DB details never leak.
func scanErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrVolunteerNotAssigned):
		return http.StatusForbidden, "volunteer_not_assigned"
	case errors.Is(err, errs.ErrNotRegistered):
		return http.StatusForbidden, "not_registered"
	case errors.Is(err, errs.ErrOrderingConflict):
		return http.StatusConflict, "ordering_conflict"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "event_not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
