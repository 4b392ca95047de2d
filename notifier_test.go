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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labsync/labsync/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUpdatesChannel = "labsync:updates"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisNotifierRelay(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- RelayUpdates(ctx, client, testUpdatesChannel, func(ev Event) { received <- ev })
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(testUpdatesChannel)[testUpdatesChannel] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(context.Background(), testUpdatesChannel, "not an event").Err())

	n := NewRedisNotifier(client, testUpdatesChannel)
	n.Emit(context.Background(), EventStatusUpdated, StatusUpdate{
		MessageID: "msg_1",
		Stage:     model.StageExtraction,
		Status:    model.StatusExtracted,
	})

	select {
	case ev := <-received:
		assert.Equal(t, EventStatusUpdated, ev.Name)
		assert.JSONEq(t, `{"message_id":"msg_1","stage":"extraction","status":"extracted"}`, string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Empty(t, received)
}

func TestRedisNotifierSurvivesClosedClient(t *testing.T) {
	_, client := newTestRedis(t)
	n := NewRedisNotifier(client, testUpdatesChannel)
	require.NoError(t, client.Close())

	assert.NotPanics(t, func() {
		n.Emit(context.Background(), EventMessageCreated, MessageCreated{})
	})
}

func TestMultiNotifier(t *testing.T) {
	first, second := &recordingNotifier{}, &recordingNotifier{}
	m := MultiNotifier{first, NopNotifier{}, second}

	m.Emit(context.Background(), EventBudgetDesigned, BudgetDesigned{MeetingID: "mtg_1"})

	assert.Equal(t, []string{EventBudgetDesigned}, first.names())
	assert.Equal(t, []string{EventBudgetDesigned}, second.names())
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(EventAllocationExpense, ExpenseRecorded{Amount: 12.5, Description: "fuel"})
	require.NoError(t, err)
	assert.Equal(t, EventAllocationExpense, ev.Name)
	assert.Contains(t, string(ev.Data), `"amount":12.5`)

	_, err = NewEvent(EventAllocationExpense, make(chan int))
	assert.Error(t, err)
}
