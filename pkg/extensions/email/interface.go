package email

import (
	"context"
	"fmt"
	"sort"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/httpapi"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/logmail"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/sqsqueue"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
)

type Provider interface {
	// 资源初始化
	Init() error

	Send(ctx context.Context, msg *types.Message) error

	GetProviderName() string
}

var providers map[string]Provider

func Register(p Provider) {
	if providers == nil {
		providers = make(map[string]Provider)
	}
	providers[p.GetProviderName()] = p
}

func Get(name string) Provider {
	return providers[name]
}

// Init registers the configured provider and initializes it. The log
// provider is always available as a fallback.
func Init(cfg config.EmailConfig) (Provider, error) {
	providers = make(map[string]Provider)
	Register(&logmail.LogMail{})

	switch cfg.Provider {
	case "", "log":
	case "http":
		Register(httpapi.New(cfg.APIURL, cfg.APIKey))
	case "sqs":
		Register(sqsqueue.New(sqsqueue.Options{
			QueueURL:  cfg.SQSQueueURL,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			Secret:    cfg.AWSSecret,
		}))
	default:
		return nil, fmt.Errorf("email provider %q not supported", cfg.Provider)
	}

	name := cfg.Provider
	if name == "" {
		name = "log"
	}
	p := Get(name)
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("email provider %s init: %w", name, err)
	}
	return &sender{Provider: p, from: cfg.From}, nil
}

// GetAvailableProviders lists registered provider names.
func GetAvailableProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sender fills the From address before delegating.
type sender struct {
	Provider
	from string
}

func (s *sender) Send(ctx context.Context, msg *types.Message) error {
	if msg.From == "" {
		msg.From = s.from
	}
	return s.Provider.Send(ctx, msg)
}
