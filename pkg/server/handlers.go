package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/checkout"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/manual"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/utils"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/report"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.deps.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type abandonRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required"`
	CustomerName  string `json:"customer_name"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func (s *Server) handleAbandoned(c *gin.Context) {
	var req abandonRequest
	if !bindJSON(c, &req) {
		return
	}
	productID, err := hashid.Decode(hashid.TypeProduct, req.ProductID)
	if err != nil {
		renderError(c, errors.ErrProductInvalidID)
		return
	}

	a, err := s.deps.Checkout.RecordAbandoned(c.Request.Context(), checkout.AbandonInput{
		ProductID:     productID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Amount:        req.Amount,
		Currency:      req.Currency,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, abandonedView(a))
}

type createOrderRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required"`
	CustomerName  string `json:"customer_name"`
	Channel       string `json:"channel" binding:"required"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	productID, err := hashid.Decode(hashid.TypeProduct, req.ProductID)
	if err != nil {
		renderError(c, errors.ErrProductInvalidID)
		return
	}
	if payment.Get(req.Channel) == nil {
		renderError(c, errors.Wrap(errors.ErrChannelNotFound, req.Channel))
		return
	}

	ctx := c.Request.Context()
	order, err := s.deps.Orders.Create(ctx, productID, req.CustomerEmail, req.CustomerName)
	if err != nil {
		renderError(c, err)
		return
	}
	result, err := s.deps.Payments.CreatePayment(ctx, req.Channel, order)
	if err != nil {
		// 支付创建失败时订单作废，客户可重新下单
		_ = s.deps.Orders.Fail(ctx, order.ID)
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":   orderView(order),
		"payment": result,
	})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.deps.Orders.GetByRef(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(order))
}

// handleConfirmOrder confirms the latest manual payment of an order.
func (s *Server) handleConfirmOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := s.deps.Orders.GetByRef(ctx, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	ch, ok := payment.Get(manual.ChannelName).(*manual.Manual)
	if !ok {
		renderError(c, errors.Wrap(errors.ErrChannelNotFound, manual.ChannelName))
		return
	}

	var record models.PaymentRecord
	err = s.deps.DB.WithContext(ctx).
		Where("order_id = ? AND channel = ?", order.ID, manual.ChannelName).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		renderError(c, errors.ErrPaymentNotFound)
		return
	}

	completed, err := ch.Confirm(ctx, utils.EncodePaymentID(record.ID), c.GetHeader(manual.SecretHeader))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(completed))
}

// handleGetPayment 支付跳转返回后前端轮询支付状态
func (s *Server) handleGetPayment(c *gin.Context) {
	record, bc, err := s.deps.Payments.GetPaymentRecordWithBusinessContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentView(record, bc))
}

func (s *Server) handlePayment(c *gin.Context) {
	ch := payment.Get(c.Param("channel"))
	if ch == nil {
		renderError(c, errors.Wrap(errors.ErrChannelNotFound, c.Param("channel")))
		return
	}
	path := strings.TrimPrefix(c.Param("path"), "/")
	if err := ch.HandleRequest(c, path); err != nil {
		renderError(c, err)
	}
}

func (s *Server) userID(c *gin.Context) (uint, bool) {
	id, err := hashid.Decode(hashid.TypeUser, c.Param("id"))
	if err != nil {
		renderError(c, errors.ErrUserInvalidID)
		return 0, false
	}
	return id, true
}

func (s *Server) handleBalance(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	balances, err := s.deps.Ledger.Balances(c.Request.Context(), userID)
	if err != nil {
		renderError(c, err)
		return
	}
	out := make(map[string]*decimal.Decimal, len(balances))
	for currency, amount := range balances {
		out[currency] = types.MinorToDecimal(amount)
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  c.Param("id"),
		"balances": out,
	})
}

func (s *Server) handleTransactions(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	txs, err := s.deps.Ledger.List(c.Request.Context(), userID, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]transactionView, 0, len(txs))
	for i := range txs {
		views = append(views, txView(&txs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": views})
}

func (s *Server) handleStatement(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	txs, err := s.deps.Ledger.List(c.Request.Context(), userID, 0)
	if err != nil {
		renderError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.ExportLedger(&buf, txs); err != nil {
		renderError(c, err)
		return
	}
	filename := fmt.Sprintf("statement-%s-%s.xlsx", c.Param("id"), time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) webhookID(c *gin.Context) (uint, bool) {
	id, err := hashid.Decode(hashid.TypeWebhook, c.Param("id"))
	if err != nil {
		renderError(c, errors.ErrWebhookInvalidID)
		return 0, false
	}
	return id, true
}

func (s *Server) handleWebhookTest(c *gin.Context) {
	id, ok := s.webhookID(c)
	if !ok {
		return
	}
	log, err := s.deps.Webhooks.Test(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhookLogView(log))
}

func (s *Server) handleWebhookLogs(c *gin.Context) {
	id, ok := s.webhookID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := s.deps.Webhooks.Logs(c.Request.Context(), id, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]webhookLogResponse, 0, len(logs))
	for i := range logs {
		views = append(views, webhookLogView(&logs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"logs": views})
}

func (s *Server) handleRunJob(c *gin.Context) {
	name := c.Param("name")
	start := time.Now()
	if err := s.deps.Scheduler.RunOnce(c.Request.Context(), name); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":         name,
		"status":      "ok",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
