package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"appcatalog/auth"
	"appcatalog/metrics"
	"appcatalog/middleware"
)

// RouterOptions configures Router. TrustedProxies lists the proxy addresses or
// CIDRs whose forwarding headers are believed; empty means the socket peer is
// the client.
type RouterOptions struct {
	CORSOrigins    []string
	TrustedProxies []string
	UploadRoot     string
	Limiter        *middleware.RateLimiter
}

// Router wires every route onto a new gin engine.
func (h *Handler) Router(opts RouterOptions) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery(), middleware.Logger(h.Log), metrics.Middleware())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(auth.Middleware(h.Auth))

	limited := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		if opts.Limiter == nil {
			return []gin.HandlerFunc{hf}
		}
		return []gin.HandlerFunc{opts.Limiter.Handler(), hf}
	}

	api := r.Group("/api")
	{
		api.Any("/apps", h.Apps)
		api.Any("/auth", limited(h.AuthAction)...)
		api.Any("/settings", h.SettingsAction)
		api.Any("/messages", limited(h.MessagesAction)...)
		api.GET("/activity", h.RecentActivity)
		api.GET("/backup", h.CreateBackup)
		api.POST("/backup/restore", h.RestoreBackup)
	}

	r.GET("/download", limited(h.Download)...)
	if opts.UploadRoot != "" {
		r.Static("/uploads/images", filepath.Join(opts.UploadRoot, "images"))
	}
	r.GET("/metrics", metrics.Handler())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r, nil
}
