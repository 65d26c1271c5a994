package paypal

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/utils"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/plutov/paypal/v4"
	"gorm.io/gorm"
)

const ChannelName = "paypal"

const duplicateMessage = "This order was already paid. The duplicate payment will be refunded."

type PayPal struct {
	cfg     config.PayPalConfig
	apiBase string
	client  *paypal.Client
}

func New(cfg config.PayPalConfig) *PayPal {
	apiBase := paypal.APIBaseLive
	if cfg.Sandbox {
		apiBase = paypal.APIBaseSandBox
	}
	return &PayPal{cfg: cfg, apiBase: apiBase}
}

// NewWithAPIBase points the client at another API host.
func NewWithAPIBase(cfg config.PayPalConfig, apiBase string) *PayPal {
	return &PayPal{cfg: cfg, apiBase: apiBase}
}

// Init 初始化PayPal客户端
func (p *PayPal) Init() error {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return fmt.Errorf("paypal client id and secret are required")
	}

	client, err := paypal.NewClient(p.cfg.ClientID, p.cfg.ClientSecret, p.apiBase)
	if err != nil {
		return err
	}

	// 获取访问令牌
	if _, err := client.GetAccessToken(context.Background()); err != nil {
		return fmt.Errorf("paypal access token: %w", err)
	}

	p.client = client
	slog.Info("[PayPal] Payment channel initialized", "apiBase", p.apiBase)
	return nil
}

// GetChannelName 获取渠道名称
func (p *PayPal) GetChannelName() string {
	return ChannelName
}

// CreatePayment 创建PayPal支付
func (p *PayPal) CreatePayment(ctx context.Context, order *models.Order) (*types.CreatePaymentResult, error) {
	record, err := utils.NewPaymentRecord(ctx, ChannelName, order, models.PaymentStatusPending)
	if err != nil {
		return nil, err
	}
	paymentHashID := utils.EncodePaymentID(record.ID)
	amount := utils.FormatAmount(record.Amount)
	slog.Info("[PayPal] Created payment record", "paymentID", record.ID, "orderID", order.ID, "amount", amount)

	purchaseUnits := []paypal.PurchaseUnitRequest{
		{
			ReferenceID: paymentHashID,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: record.Currency,
				Value:    amount,
			},
			Description: "Order " + hashid.Encode(hashid.TypeOrder, order.ID),
		},
	}

	applicationContext := &paypal.ApplicationContext{
		ReturnURL: p.getCallbackURL(paymentHashID, "success"),
		CancelURL: p.getCallbackURL(paymentHashID, "cancel"),
	}

	ppOrder, err := p.client.CreateOrder(ctx, "CAPTURE", purchaseUnits, nil, applicationContext)
	if err != nil {
		_ = utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusFailed)
		return nil, fmt.Errorf("failed to create PayPal order: %w", err)
	}

	approvalURL := p.getApprovalURL(ppOrder)
	if approvalURL == "" {
		_ = utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusFailed)
		return nil, fmt.Errorf("failed to get PayPal approval URL")
	}

	// 记录PayPal订单ID
	err = database.Database().WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"status":            models.PaymentStatusCreated,
		"external_order_id": ppOrder.ID,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update payment record status: %w", err)
	}

	return &types.CreatePaymentResult{
		Success:       false, // 需要用户跳转到PayPal
		PaymentHashID: paymentHashID,
		OrderRef:      hashid.Encode(hashid.TypeOrder, order.ID),
		ExternalID:    ppOrder.ID,
		Amount:        record.Amount,
		Currency:      record.Currency,
		Status:        string(models.PaymentStatusCreated),
		RedirectURL:   approvalURL,
		ClientArgs: map[string]interface{}{
			"paypal": map[string]interface{}{
				"order_id":        ppOrder.ID,
				"approval_url":    approvalURL,
				"payment_hash_id": paymentHashID,
				"amount":          amount,
				"currency":        record.Currency,
			},
		},
		Message: "Please complete payment on PayPal",
	}, nil
}

// HandleRequest 处理PayPal的回调和webhook请求
func (p *PayPal) HandleRequest(c *gin.Context, path string) error {
	switch {
	case strings.HasPrefix(path, "callback/"):
		return p.handleCallback(c, path)
	case path == "webhook":
		return p.handleWebhook(c)
	default:
		c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		return nil
	}
}

// handleCallback 处理用户从PayPal返回, path: callback/{payment_hash_id}
func (p *PayPal) handleCallback(c *gin.Context, path string) error {
	ctx := c.Request.Context()
	paymentHashID := strings.TrimPrefix(path, "callback/")

	record, err := utils.GetPaymentRecord(ctx, paymentHashID)
	if err != nil {
		slog.Warn("[PayPal] Callback for unknown payment", "payment", paymentHashID, "error", err)
		return p.renderResultPage(c, false, "Payment record not found")
	}

	if c.Query("action") == "cancel" {
		if err := utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusCancelled); err != nil {
			slog.Error("[PayPal] Failed to cancel payment", "paymentID", record.ID, "error", err)
		}
		return p.renderResultPage(c, false, "Payment was cancelled")
	}

	if record.Status == models.PaymentStatusCompleted {
		return p.renderResultPage(c, true, "Payment completed successfully")
	}
	if record.Status == models.PaymentStatusDuplicate {
		return p.renderResultPage(c, false, duplicateMessage)
	}
	if record.ExternalOrderID == "" {
		return p.renderResultPage(c, false, "PayPal order not found")
	}

	ppOrder, err := p.client.GetOrder(ctx, record.ExternalOrderID)
	if err != nil {
		slog.Error("[PayPal] Failed to get order", "paymentID", record.ID, "error", err)
		return p.renderResultPage(c, false, "Failed to retrieve PayPal order")
	}
	if ppOrder.Status != "APPROVED" && ppOrder.Status != "COMPLETED" {
		slog.Warn("[PayPal] Order not approved", "paymentID", record.ID, "status", ppOrder.Status)
		_ = utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusFailed)
		return p.renderResultPage(c, false, "Payment not approved, status: "+ppOrder.Status)
	}

	if ppOrder.Status == "APPROVED" {
		capture, err := p.client.CaptureOrder(ctx, record.ExternalOrderID, paypal.CaptureOrderRequest{})
		if err != nil {
			slog.Error("[PayPal] Capture failed", "paymentID", record.ID, "error", err)
			_ = utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusFailed)
			return p.renderResultPage(c, false, "Failed to capture payment")
		}
		if capture.Status != "COMPLETED" {
			slog.Warn("[PayPal] Capture incomplete", "paymentID", record.ID, "status", capture.Status)
			_ = utils.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusFailed)
			return p.renderResultPage(c, false, "Payment capture incomplete, status: "+capture.Status)
		}
	}

	if _, err := utils.CompletePayment(ctx, record); err != nil {
		if stderrors.Is(err, errors.ErrPaymentDuplicate) {
			return p.renderResultPage(c, false, duplicateMessage)
		}
		slog.Error("[PayPal] Failed to complete payment", "paymentID", record.ID, "error", err)
		return p.renderResultPage(c, false, "Failed to process payment")
	}
	return p.renderResultPage(c, true, "Payment completed successfully")
}

type webhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// handleWebhook 处理PayPal webhook，未配置WebhookID时只应答
func (p *PayPal) handleWebhook(c *gin.Context) error {
	if p.cfg.WebhookID == "" {
		c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		return nil
	}
	ctx := c.Request.Context()

	verify, err := p.client.VerifyWebhookSignature(ctx, c.Request, p.cfg.WebhookID)
	if err != nil || verify.VerificationStatus != "SUCCESS" {
		slog.Warn("[PayPal] Webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return nil
	}

	if ev.EventType == "PAYMENT.CAPTURE.COMPLETED" {
		orderID := ev.Resource.SupplementaryData.RelatedIDs.OrderID
		var record models.PaymentRecord
		err := database.Database().WithContext(ctx).
			Where("channel = ? AND external_order_id = ?", ChannelName, orderID).
			First(&record).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("[PayPal] Webhook for unknown order", "paypalOrder", orderID)
		} else if err != nil {
			return err
		} else if _, err := utils.CompletePayment(ctx, &record); err != nil && !stderrors.Is(err, errors.ErrPaymentDuplicate) {
			// 重复支付已记录，不让PayPal重投
			return err
		}
	}

	c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

// getApprovalURL 从PayPal订单链接中获取批准URL
func (p *PayPal) getApprovalURL(order *paypal.Order) string {
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

// getCallbackURL 生成回调URL
func (p *PayPal) getCallbackURL(paymentHashID, action string) string {
	return config.BuildURL("/payment/paypal/callback/" + paymentHashID + "?action=" + action)
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em">
    <h3>{{.Title}}</h3>
    <p>{{.Message}}</p>
    <button onclick="window.close()">Close Window</button>
    <script>
        var result = {type: 'payment_result', success: {{.Success}}, message: {{.Message}}};
        // 通知打开者或父窗口
        if (window.opener) { window.opener.postMessage(result, '*'); }
        if (window.parent !== window) { window.parent.postMessage(result, '*'); }
    </script>
</body>
</html>`))

// renderResultPage 渲染结果页面
func (p *PayPal) renderResultPage(c *gin.Context, success bool, message string) error {
	title := "Payment Failed"
	if success {
		title = "Payment Successful"
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	return resultPage.Execute(c.Writer, map[string]interface{}{
		"Title":   title,
		"Message": message,
		"Success": success,
	})
}
