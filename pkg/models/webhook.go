package models

import (
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
)

// WebhookEndpoint is a merchant-configured delivery target.
type WebhookEndpoint struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	URL       string `gorm:"size:500;not null"`
	Secret    string `gorm:"size:255"`
	Events    string `gorm:"size:500"` // 逗号分隔，"*" 表示全部
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *WebhookEndpoint) TableName() string {
	return "ar_webhook_endpoints"
}

// Subscribed reports whether the endpoint wants eventType.
func (w *WebhookEndpoint) Subscribed(eventType string) bool {
	for _, e := range strings.Split(w.Events, ",") {
		e = strings.TrimSpace(e)
		if e == "*" || e == eventType {
			return true
		}
	}
	return false
}

// WebhookLog rows are append-only.
type WebhookLog struct {
	ID             uint   `gorm:"primaryKey"`
	WebhookID      uint   `gorm:"index"`
	DeliveryID     string `gorm:"size:36;index"`
	EventType      string `gorm:"size:50;index"`
	Payload        string `gorm:"type:text"`
	ResponseStatus int
	ResponseBody   string `gorm:"type:text"`
	Success        bool
	Error          string `gorm:"size:500"`
	CreatedAt      time.Time
}

func (w *WebhookLog) TableName() string {
	return "ar_webhook_logs"
}

func init() {
	database.RegisterAutoMigrateModels(&WebhookEndpoint{}, &WebhookLog{})
}
