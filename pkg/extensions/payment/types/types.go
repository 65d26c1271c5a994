package types

// CreatePaymentResult 创建支付结果
type CreatePaymentResult struct {
	Success       bool                   `json:"success"`
	PaymentHashID string                 `json:"payment_hash_id"` // 使用hashid编码的支付ID
	OrderRef      string                 `json:"order_id"`
	ExternalID    string                 `json:"external_id"` // 外部支付系统的订单ID
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Status        string                 `json:"status"`       // pending, created, completed, failed
	RedirectURL   string                 `json:"redirect_url"` // 需要用户跳转的URL
	ClientArgs    map[string]interface{} `json:"client_args"`  // 传递给前端的参数
	Message       string                 `json:"message"`
}

// BusinessContext is stored with each payment record so callbacks can be
// traced back to the order without another lookup.
type BusinessContext struct {
	OrderRef      string `json:"order_id"`
	ProductID     uint   `json:"product_id"`
	CustomerEmail string `json:"customer_email"`
}

// PaymentCallbackResult 支付回调处理结果
type PaymentCallbackResult struct {
	Success       bool   `json:"success"`
	PaymentHashID string `json:"payment_hash_id"`
	OrderRef      string `json:"order_id,omitempty"`
	Status        string `json:"status"` // completed, failed, cancelled
	Message       string `json:"message"`
}
