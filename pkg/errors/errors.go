package errors

import (
	stderrors "errors"
	"fmt"
)

// UserError is an error whose code and message are safe to show to API clients.
type UserError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	// NotFound selects a 404 instead of a 400 at the HTTP layer.
	NotFound bool `json:"-"`
}

func (e *UserError) Error() string {
	return e.Message
}

func New(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

func NotFound(code, message string) *UserError {
	return &UserError{Code: code, Message: message, NotFound: true}
}

// Wrap attaches detail to a sentinel while keeping errors.Is/As working.
func Wrap(sentinel *UserError, detail string) error {
	return fmt.Errorf("%w: %s", sentinel, detail)
}

// AsUserError extracts the first UserError in err's chain.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

var ErrInvalidRequest = New("request.invalid", "Invalid request")

// 结账相关错误
var (
	ErrProductInvalidID  = New("checkout.product_invalid_id", "Invalid product ID")
	ErrInvalidEmail      = New("checkout.invalid_email", "Customer email is invalid")
	ErrProductRequired   = New("checkout.product_required", "Product is required")
	ErrProductNotFound   = NotFound("checkout.product_not_found", "Product not found")
	ErrProductInactive   = New("checkout.product_inactive", "Product is not available for sale")
	ErrAlreadyPurchased  = New("checkout.already_purchased", "Customer already purchased this product")
	ErrInvalidAmount     = New("checkout.invalid_amount", "Amount must be positive")
	ErrCurrencyMismatch  = New("checkout.currency_mismatch", "Currency does not match")
	ErrAbandonedNotFound = NotFound("checkout.abandoned_not_found", "Abandoned purchase not found")
)

// 订单相关错误
var (
	ErrOrderNotFound        = NotFound("order.not_found", "Order not found")
	ErrOrderInvalidID       = New("order.invalid_id", "Invalid order ID")
	ErrOrderNotPending      = New("order.not_pending", "Order is not pending")
	ErrPaymentNotFound      = NotFound("payment.not_found", "Payment record not found")
	ErrPaymentInvalidID     = New("payment.invalid_id", "Invalid payment ID")
	ErrChannelNotFound      = NotFound("payment.channel_not_found", "Payment channel not found")
	ErrInvalidConfirmSecret = New("payment.invalid_confirm_secret", "Invalid confirmation secret")
	ErrPaymentDuplicate     = New("payment.duplicate", "Order was already paid by another payment")
)

// 账本与结算相关错误
var (
	ErrCommissionOverflow = New("release.commission_overflow", "Co-producer commissions exceed 100%")
)

// Webhook相关错误
var (
	ErrWebhookNotFound  = NotFound("webhook.not_found", "Webhook endpoint not found")
	ErrWebhookInactive  = New("webhook.inactive", "Webhook endpoint is inactive")
	ErrWebhookInvalidID = New("webhook.invalid_id", "Invalid webhook ID")
)

var ErrUserInvalidID = New("user.invalid_id", "Invalid user ID")

// 任务相关错误
var (
	ErrJobNotFound = NotFound("job.not_found", "Job not found")
	ErrJobRunning  = New("job.running", "Job is already running")
)
