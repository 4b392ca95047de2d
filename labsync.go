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
	"fmt"
	"time"

	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/database"
	"github.com/labsync/labsync/internal/llm"
	"github.com/labsync/labsync/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("labsync.pipeline")

// Labsync holds the pipeline stages and the collaborators they talk to.
// Every collaborator is passed in; nothing is looked up globally.
type Labsync struct {
	datasource database.IDataSource
	generator  llm.Generator
	notifier   Notifier
	dispatcher Dispatcher
	retry      RetryOptions
}

type Option func(*Labsync)

func WithNotifier(n Notifier) Option {
	return func(l *Labsync) {
		if n != nil {
			l.notifier = n
		}
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(l *Labsync) {
		if d != nil {
			l.dispatcher = d
		}
	}
}

func WithRetryOptions(opts RetryOptions) Option {
	return func(l *Labsync) {
		l.retry = opts
	}
}

// DefaultRetryOptions are the limits used for every model call: 3 retries, 2s initial delay, 10s cap.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

// RetryOptionsFromConfig reads retry limits from the pipeline section.
func RetryOptionsFromConfig(cfg config.PipelineConfig) RetryOptions {
	return RetryOptions{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay(),
		MaxDelay:     cfg.MaxDelay(),
	}
}

// NewLabsync builds the pipeline. Without options events are dropped and chained
// stages are left to the processor's next scan.
func NewLabsync(ds database.IDataSource, generator llm.Generator, opts ...Option) *Labsync {
	l := &Labsync{
		datasource: ds,
		generator:  generator,
		notifier:   NopNotifier{},
		dispatcher: NopDispatcher{},
		retry:      DefaultRetryOptions(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Labsync) DataSource() database.IDataSource {
	return l.datasource
}

// RunStage runs one stage for the entity it takes: a message id for extraction,
// a meeting id for design and a budget id for allocation.
func (l *Labsync) RunStage(ctx context.Context, stage model.Stage, id string) (interface{}, error) {
	switch stage {
	case model.StageExtraction:
		return l.ExtractMeeting(ctx, id)
	case model.StageDesign:
		return l.DesignBudget(ctx, id)
	case model.StageAllocation:
		return l.AllocateBudget(ctx, id)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// generate calls the model through the retry policy.
func (l *Labsync) generate(ctx context.Context, prompt string) (string, error) {
	return RetryWithBackoff(ctx, func(ctx context.Context) (string, error) {
		return l.generator.Generate(ctx, prompt)
	}, l.retry)
}

// markFailed records a failed stage. It runs on a context detached from cancellation
// so a timed out stage still leaves its status behind.
func (l *Labsync) markFailed(ctx context.Context, messageID string, stage model.Stage) {
	ctx = context.WithoutCancel(ctx)
	if err := l.datasource.UpdateMessageStatus(ctx, messageID, stage, model.StatusFailed); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"stage":      stage,
		}).Errorf("failed to record stage failure: %v", err)
		return
	}
	l.notifier.Emit(ctx, EventStatusUpdated, StatusUpdate{
		MessageID: messageID,
		Stage:     stage,
		Status:    model.StatusFailed,
	})
}

// chain hands the next stage to the dispatcher. Dispatch failures are logged only:
// the processor scan picks the entity up later.
func (l *Labsync) chain(ctx context.Context, stage model.Stage, id string) {
	if err := l.dispatcher.Dispatch(ctx, stage, id); err != nil {
		logrus.WithFields(logrus.Fields{
			"stage": stage,
			"id":    id,
		}).Warnf("failed to dispatch next stage: %v", err)
	}
}
