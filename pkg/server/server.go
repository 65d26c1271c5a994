// Package server exposes the checkout HTTP API.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flaboy/aira-checkout/pkg/checkout"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment"
	"github.com/flaboy/aira-checkout/pkg/ledger"
	"github.com/flaboy/aira-checkout/pkg/orders"
	"github.com/flaboy/aira-checkout/pkg/scheduler"
	"github.com/flaboy/aira-checkout/pkg/webhook"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	Checkout  *checkout.Service
	Orders    *orders.Service
	Payments  *payment.PaymentManager
	Ledger    *ledger.Ledger
	Webhooks  *webhook.Dispatcher
	Scheduler *scheduler.Engine
}

// Server is the checkout API server
type Server struct {
	deps   Deps
	router *gin.Engine
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{deps: deps, router: router}

	router.GET("/healthz", s.handleHealth)

	// 支付渠道回调
	router.Any("/payment/:channel/*path", s.handlePayment)

	api := router.Group("/api")
	{
		api.POST("/checkout/abandoned", s.handleAbandoned)

		api.POST("/orders", s.handleCreateOrder)
		api.GET("/orders/:id", s.handleGetOrder)
		api.POST("/orders/:id/confirm", s.handleConfirmOrder)
		api.GET("/payments/:id", s.handleGetPayment)

		api.GET("/users/:id/balance", s.handleBalance)
		api.GET("/users/:id/transactions", s.handleTransactions)
		api.GET("/users/:id/statement.xlsx", s.handleStatement)

		api.POST("/webhooks/:id/test", s.handleWebhookTest)
		api.GET("/webhooks/:id/logs", s.handleWebhookLogs)

		api.POST("/jobs/:name/run", s.handleRunJob)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains for up to 10s.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[Server] Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("[Server] Stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("[Server] Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
