// Package notification delivers push notifications through shoutrrr
// service URLs (ntfy, telegram, gotify and friends).
package notification

import (
	"context"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

const defaultPushTimeout = 30 * time.Second

// ShoutrrrProvider fans a message out to one or more shoutrrr URLs.
// A provider with no URLs is valid and sends nothing.
type ShoutrrrProvider struct {
	urls    []string
	router  *router.ServiceRouter
	timeout time.Duration
	log     logger.Logger
}

// NewShoutrrrProvider validates the given service URLs and returns a
// provider ready to send. URLs are validated eagerly so misconfiguration
// surfaces at startup rather than on the first alert.
func NewShoutrrrProvider(settings *conf.PushSettings, log logger.Logger) (*ShoutrrrProvider, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	timeout := settings.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}

	p := &ShoutrrrProvider{
		urls:    settings.URLs,
		timeout: timeout,
		log:     log,
	}
	if len(settings.URLs) == 0 {
		return p, nil
	}

	sender, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		return nil, errors.Newf("invalid push notification URL: %w", err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	p.router = sender
	return p, nil
}

// Enabled reports whether at least one service URL is configured.
func (p *ShoutrrrProvider) Enabled() bool {
	return p.router != nil
}

// Send delivers the message to every configured service URL. Per-URL
// failures are collected; Send fails only if every URL failed.
func (p *ShoutrrrProvider) Send(ctx context.Context, title, message string) error {
	if p.router == nil {
		return nil
	}

	params := types.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	done := make(chan []error, 1)
	go func() {
		done <- p.router.Send(message, &params)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var sendErrs []error
	select {
	case sendErrs = <-done:
	case <-ctx.Done():
		return errors.Newf("push notification timed out: %w", ctx.Err()).
			Component("notification").
			Category(errors.CategoryDelivery).
			Build()
	}

	failed := 0
	var lastErr error
	for i, err := range sendErrs {
		if err == nil {
			continue
		}
		failed++
		lastErr = err
		target := ""
		if i < len(p.urls) {
			target = redactURL(p.urls[i])
		}
		p.log.Warn("push delivery failed",
			logger.String("url", target),
			logger.Error(err))
	}

	if failed > 0 && failed == len(sendErrs) {
		return errors.Newf("all push targets failed: %w", lastErr).
			Component("notification").
			Category(errors.CategoryDelivery).
			Build()
	}
	return nil
}

// redactURL strips everything after the scheme so tokens embedded in
// shoutrrr URLs never reach the logs.
func redactURL(raw string) string {
	for i := range raw {
		if raw[i] == ':' {
			return raw[:i] + "://***"
		}
	}
	return "***"
}
