/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/internal/request"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WebhookQueue accepts events for later delivery.
type WebhookQueue interface {
	EnqueueWebhook(ctx context.Context, ev Event) error
}

// WebhookNotifier forwards every event to the webhook queue.
type WebhookNotifier struct {
	queue WebhookQueue
}

func NewWebhookNotifier(queue WebhookQueue) *WebhookNotifier {
	return &WebhookNotifier{queue: queue}
}

func (n *WebhookNotifier) Emit(ctx context.Context, event string, data interface{}) {
	ev, err := NewEvent(event, data)
	if err != nil {
		logrus.WithField("event", event).Errorf("failed to encode webhook event: %v", err)
		return
	}
	if err := n.queue.EnqueueWebhook(ctx, ev); err != nil {
		logrus.WithField("event", event).Warnf("failed to queue webhook: %v", err)
	}
}

// WebhookSender posts queued events to the configured endpoint.
type WebhookSender struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhookSender(url string, headers map[string]string, client *http.Client) *WebhookSender {
	if client == nil {
		client = request.NewClient()
	}
	return &WebhookSender{url: url, headers: headers, client: client}
}

// WebhookSenderFromConfig builds a sender from the notification section.
func WebhookSenderFromConfig(cfg config.Notification) *WebhookSender {
	return NewWebhookSender(cfg.Webhook.Url, cfg.Webhook.Headers, nil)
}

func (s *WebhookSender) Enabled() bool {
	return s.url != ""
}

// Send posts ev. Non-2xx replies are errors so the queue retries them.
func (s *WebhookSender) Send(ctx context.Context, ev Event) error {
	if !s.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "SendWebhook", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("event.name", ev.Name))

	if _, err := request.PostJSON(ctx, s.client, s.url, s.headers, ev, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deliver %s webhook: %w", ev.Name, err)
	}
	logrus.WithField("event", ev.Name).Debug("webhook delivered")
	return nil
}

// ProcessWebhook is the handler for TaskWebhook.
func (s *WebhookSender) ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("invalid webhook payload: %v: %w", err, asynq.SkipRetry)
	}
	return s.Send(ctx, ev)
}
