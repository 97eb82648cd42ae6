package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/scheduler"
)

// Core is the slice of the running service the ops surface exposes.
type Core interface {
	SyncNow(ctx context.Context) error
	Status() scheduler.Status
	TriggerOnce(ctx context.Context, userID string) error
	TestDelivery(ctx context.Context, recipientID, content string) error
}

// Server is the operational HTTP surface: health, status, and manual
// controls. It carries no user-facing functionality.
type Server struct {
	core Core
	http *http.Server
	log  *zap.Logger
}

func NewServer(addr string, core Core, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		core: core,
		http: &http.Server{Addr: addr, Handler: r},
		log:  log,
	}

	r.GET("/healthz", s.healthz)
	r.GET("/status", s.status)
	r.POST("/sync", s.sync)
	r.POST("/trigger/:user", s.trigger)
	r.POST("/test/delivery", s.testDelivery)
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("ops server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.core.Status())
}

func (s *Server) sync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := s.core.SyncNow(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.core.Status())
}

// trigger fires one user's brief immediately, outside their schedule.
// The dedup guard still applies, a user already briefed today is a
// no-op.
func (s *Server) trigger(c *gin.Context) {
	userID := c.Param("user")
	if err := s.core.TriggerOnce(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userID, "triggered": true})
}

type testDeliveryRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Content     string `json:"content"`
}

// testDelivery pushes an arbitrary payload through the configured
// transport, bypassing generation and dedup. Meant for verifying
// wiring in a fresh deployment.
func (s *Server) testDelivery(c *gin.Context) {
	var req testDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" {
		req.Content = "Delivery test from the brief scheduler."
	}
	if err := s.core.TestDelivery(c.Request.Context(), req.RecipientID, req.Content); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": true})
}
