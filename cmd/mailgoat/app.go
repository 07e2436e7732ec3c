package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mailgoatai/mailgoat-sub001/internal/config"
	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newSender(cfg *config.Config) (mail.Sender, error) {
	switch cfg.Transport {
	case "smtp":
		return &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, nil
	case "api":
		var limiter *rate.Limiter
		if cfg.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
		}
		return &mail.APISender{
			BaseURL: cfg.APIBaseURL,
			APIKey:  cfg.APIKey,
			Client:  &http.Client{Timeout: 30 * time.Second},
			Limiter: limiter,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver: cfg.StoreDriver,
		Path:   cfg.StorePath,
		DSN:    cfg.DatabaseURL,
	})
}
