// Package notify delivers alerts outside the pipeline without blocking it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/sirupsen/logrus"
)

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, alert market.Alert) error
}

// Multi fans an alert out to several senders and joins their errors.
type Multi []Sender

func (m Multi) Send(ctx context.Context, alert market.Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSender writes alerts to a logrus logger.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(_ context.Context, alert market.Alert) error {
	l := s.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	entry := l.WithFields(logrus.Fields{
		"type":     alert.Type,
		"severity": alert.Severity,
		"provider": alert.ProviderID,
	})
	switch alert.Severity {
	case market.AlertCritical, market.AlertWarning:
		entry.Warnf("%s: %s", alert.Title, alert.Message)
	default:
		entry.Infof("%s: %s", alert.Title, alert.Message)
	}
	return nil
}

// WebhookSender posts alerts as JSON to a URL, retrying transient failures.
type WebhookSender struct {
	url    string
	client *retryablehttp.Client
}

func NewWebhookSender(url string, retries int, timeout time.Duration) *WebhookSender {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil
	return &WebhookSender{url: url, client: c}
}

func (s *WebhookSender) Send(ctx context.Context, alert market.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher sends alerts in the background. Failures are logged and
// never reach the caller.
type Dispatcher struct {
	sender  Sender
	log     logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{sender: sender, log: log, timeout: 30 * time.Second}
}

// Dispatch queues alert for delivery and returns immediately.
func (d *Dispatcher) Dispatch(alert market.Alert) {
	if d == nil || d.sender == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sender.Send(ctx, alert); err != nil {
			d.log.WithField("alert", alert.ID).Errorf("failed to deliver %s alert: %v", alert.Type, err)
		}
	}()
}

// Wait blocks until every dispatched alert has been handled.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
