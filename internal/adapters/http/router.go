package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceSignal/internal/adapters/signal"
	"github.com/dkeye/VoiceSignal/internal/app/orch"
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/config"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps are what the router serves. Hub and Relays may be nil.
type Deps struct {
	Orch   *orch.Orchestrator
	Hub    *signal.Hub
	Relays *relay.Table
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if fi, err := os.Stat(cfg.StaticPath); err == nil && fi.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("account", cfg.Account).Msg("router setup")

	h := &handlers{orch: deps.Orch, relays: deps.Relays}
	api := r.Group("/api")

	if deps.Hub != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			addr, err := domain.NewAddress(c.Query("address"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid address"})
				return
			}
			log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Str("address", string(addr)).Msg("ws signal endpoint hit")
			if err := deps.Hub.Serve(ctx, c.Writer, c.Request, addr); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("ws signal")
			}
		})
	}

	api.GET("/calls", h.listCalls)
	api.POST("/calls", h.createCall)
	api.GET("/calls/:id", h.getCall)
	api.POST("/calls/:id/peers", h.addPeer)
	api.POST("/calls/:id/focus", h.setFocus)
	api.POST("/calls/:id/video", h.setVideo)

	api.POST("/sessions/:sid/answer", h.answer)
	api.POST("/sessions/:sid/hangup", h.hangup)
	api.POST("/sessions/:sid/hold", h.hold)
	api.POST("/sessions/:sid/transfer", h.transfer)

	api.GET("/relays", h.listRelays)
	api.GET("/roster", h.roster)

	return r
}
