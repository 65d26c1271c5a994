package payment

import (
	"context"
	"sort"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/manual"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/paypal"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/gin-gonic/gin"
)

type PaymentChannel interface {
	// 为订单创建支付
	CreatePayment(ctx context.Context, order *models.Order) (*types.CreatePaymentResult, error)

	// 处理外部请求（回调和webhook）
	HandleRequest(c *gin.Context, path string) error

	// 资源初始化
	Init() error

	// 获取渠道名称
	GetChannelName() string
}

func Get(channel string) PaymentChannel {
	return paymentChannels[channel]
}

var paymentChannels map[string]PaymentChannel

// Init registers the manual channel and, when enabled, PayPal.
func Init(cfg *config.CommenceConfig) error {
	channels := []PaymentChannel{manual.New(cfg.ManualPayment.Secret)}
	if cfg.PayPal.Enabled {
		channels = append(channels, paypal.New(cfg.PayPal))
	}
	return Use(channels...)
}

// Use replaces the registered channels and initializes them.
func Use(channels ...PaymentChannel) error {
	paymentChannels = make(map[string]PaymentChannel)
	for _, channel := range channels {
		if err := channel.Init(); err != nil {
			return err
		}
		paymentChannels[channel.GetChannelName()] = channel
	}
	return nil
}

// GetAvailableChannels 获取所有可用的支付渠道
func GetAvailableChannels() []string {
	channels := make([]string, 0, len(paymentChannels))
	for name := range paymentChannels {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}
