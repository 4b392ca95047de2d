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
	"errors"

	"github.com/labsync/labsync/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	EventMessageCreated    = "message:created"
	EventStatusUpdated     = "message:status:updated"
	EventMeetingExtracted  = "meeting:extracted"
	EventBudgetDesigned    = "budget:designed"
	EventAllocationCreated = "allocation:created"
	EventAllocationUpdated = "allocation:updated"
	EventAllocationExpense = "allocation:expense"
)

// Event is the envelope delivered to dashboard clients and outbound webhooks.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(name string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

type MessageCreated struct {
	Message *model.Message `json:"message"`
}

type StatusUpdate struct {
	MessageID string         `json:"message_id"`
	Stage     model.Stage    `json:"stage"`
	Status    model.Status   `json:"status"`
	Message   *model.Message `json:"message,omitempty"`
}

type MeetingExtracted struct {
	Meeting   *model.Meeting `json:"meeting"`
	MessageID string         `json:"message_id"`
}

type BudgetDesigned struct {
	Budget    *model.Budget `json:"budget"`
	MeetingID string        `json:"meeting_id"`
	MessageID string        `json:"message_id"`
}

type AllocationsCreated struct {
	Allocations    []model.Allocation `json:"allocations"`
	BudgetID       string             `json:"budget_id"`
	ProjectName    string             `json:"project_name"`
	TotalAllocated float64            `json:"total_allocated"`
}

// Notifier delivers pipeline events. Emit is best-effort and never reports failure.
type Notifier interface {
	Emit(ctx context.Context, event string, data interface{})
}

type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, string, interface{}) {}

// MultiNotifier fans an event out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Emit(ctx context.Context, event string, data interface{}) {
	for _, n := range m {
		n.Emit(ctx, event, data)
	}
}

// RedisNotifier publishes events on a Redis channel so API replicas can relay them
// to their WebSocket clients.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Emit(ctx context.Context, event string, data interface{}) {
	ev, err := NewEvent(event, data)
	if err != nil {
		logrus.WithField("event", event).Errorf("failed to encode event: %v", err)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logrus.WithField("event", event).Errorf("failed to encode event: %v", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		logrus.WithField("event", event).Warnf("failed to publish event: %v", err)
	}
}

// RelayUpdates subscribes to channel and hands every decoded event to deliver until
// ctx is done. Undecodable messages are skipped.
func RelayUpdates(ctx context.Context, client redis.UniversalClient, channel string, deliver func(Event)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logrus.Warnf("dropping malformed event on %s: %v", channel, err)
				continue
			}
			deliver(ev)
		}
	}
}
