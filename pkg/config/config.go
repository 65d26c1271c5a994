package config

import (
	"strings"
	"time"
)

type DatabaseConfig struct {
	Driver string `cfg:"DRIVER" default:"postgres"`
	DSN    string `cfg:"DSN"`
}

type AbandonConfig struct {
	// 同一商品+邮箱在窗口内只保留一条放弃记录
	Window time.Duration `cfg:"WINDOW" default:"30m"`
}

type RecoveryConfig struct {
	Enabled       bool          `cfg:"ENABLED" default:"true"`
	Delay         time.Duration `cfg:"DELAY" default:"1h"`
	Interval      time.Duration `cfg:"INTERVAL" default:"24h"`
	MaxAttempts   int           `cfg:"MAX_ATTEMPTS" default:"3"`
	BatchSize     int           `cfg:"BATCH_SIZE" default:"100"`
	SendRate      float64       `cfg:"SEND_RATE" default:"5"`
	TemplatesFile string        `cfg:"TEMPLATES_FILE"`
	CheckoutPath  string        `cfg:"CHECKOUT_PATH" default:"/checkout/{product_id}"`
	RetryBackoff  time.Duration `cfg:"RETRY_BACKOFF" default:"15m"`
}

type ReleaseConfig struct {
	Enabled      bool          `cfg:"ENABLED" default:"true"`
	BusinessDays int           `cfg:"BUSINESS_DAYS" default:"3"`
	BatchSize    int           `cfg:"BATCH_SIZE" default:"100"`
	RetryBackoff time.Duration `cfg:"RETRY_BACKOFF" default:"15m"`
}

type WebhookConfig struct {
	Timeout time.Duration `cfg:"TIMEOUT" default:"10s"`
	Version string        `cfg:"VERSION" default:"1.0"`
	Async   bool          `cfg:"ASYNC" default:"true"`
}

type SchedulerConfig struct {
	RecoveryEvery time.Duration `cfg:"RECOVERY_EVERY" default:"5m"`
	ReleaseEvery  time.Duration `cfg:"RELEASE_EVERY" default:"15m"`
	LockTTL       time.Duration `cfg:"LOCK_TTL" default:"5m"`
}

type RedisConfig struct {
	Addr     string `cfg:"ADDR"`
	Password string `cfg:"PASSWORD"`
	DB       int    `cfg:"DB" default:"0"`
}

type EmailConfig struct {
	Provider     string `cfg:"PROVIDER" default:"log"`
	From         string `cfg:"FROM" default:"no-reply@localhost"`
	APIURL       string `cfg:"API_URL"`
	APIKey       string `cfg:"API_KEY"`
	SQSQueueURL  string `cfg:"SQS_QUEUE_URL"`
	AWSRegion    string `cfg:"AWS_REGION"`
	AWSAccessKey string `cfg:"AWS_ACCESS_KEY"`
	AWSSecret    string `cfg:"AWS_SECRET"`
}

type PayPalConfig struct {
	Enabled      bool   `cfg:"ENABLED" default:"false"`
	ClientID     string `cfg:"CLIENT_ID"`
	ClientSecret string `cfg:"CLIENT_SECRET"`
	Sandbox      bool   `cfg:"SANDBOX" default:"true"`
	// 配置后校验webhook签名并处理PAYMENT.CAPTURE.COMPLETED
	WebhookID string `cfg:"WEBHOOK_ID"`
}

type ManualPaymentConfig struct {
	// 为空时manual渠道拒绝所有确认请求
	Secret string `cfg:"SECRET"`
}

type CommenceConfig struct {
	HTTPAddr   string `cfg:"HTTP_ADDR" default:":8080"`
	PublicURL  string `cfg:"PUBLIC_URL" default:"http://localhost:8080"`
	HashIDSalt string `cfg:"HASHID_SALT" default:"aira-checkout"`

	Database  DatabaseConfig  `cfg:"DATABASE"`
	Abandon   AbandonConfig   `cfg:"ABANDON"`
	Recovery  RecoveryConfig  `cfg:"RECOVERY"`
	Release   ReleaseConfig   `cfg:"RELEASE"`
	Webhook   WebhookConfig   `cfg:"WEBHOOK"`
	Scheduler SchedulerConfig `cfg:"SCHEDULER"`
	Redis     RedisConfig     `cfg:"REDIS"`
	Email     EmailConfig     `cfg:"EMAIL"`

	// 支付服务配置
	PayPal        PayPalConfig        `cfg:"PAYPAL"`
	ManualPayment ManualPaymentConfig `cfg:"MANUAL_PAYMENT"`
}

var Config *CommenceConfig

// BuildURL joins path onto the configured public URL.
func BuildURL(path string) string {
	base := "http://localhost:8080"
	if Config != nil && Config.PublicURL != "" {
		base = Config.PublicURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
