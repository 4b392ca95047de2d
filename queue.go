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
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/labsync/labsync/config"
	redis_db "github.com/labsync/labsync/internal/redis-db"
	"github.com/labsync/labsync/model"
	"github.com/sirupsen/logrus"
)

const (
	TaskExtract  = "pipeline:extract"
	TaskDesign   = "pipeline:design"
	TaskAllocate = "pipeline:allocate"
	TaskWebhook  = "webhook:deliver"

	webhookMaxRetry = 5
)

var stageTasks = map[model.Stage]string{
	model.StageExtraction: TaskExtract,
	model.StageDesign:     TaskDesign,
	model.StageAllocation: TaskAllocate,
}

var taskStages = map[string]model.Stage{
	TaskExtract:  model.StageExtraction,
	TaskDesign:   model.StageDesign,
	TaskAllocate: model.StageAllocation,
}

// StagePayload is the body of a stage task.
type StagePayload struct {
	ID string `json:"id"`
}

// Queue hands stages and outbound webhooks to the worker process.
type Queue struct {
	Client        *asynq.Client
	Inspector     *asynq.Inspector
	pipelineQueue string
	webhookQueue  string
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewQueueWithOptions(opt, conf.Queue.PipelineQueue, conf.Queue.WebhookQueue), nil
}

func NewQueueWithOptions(opt asynq.RedisConnOpt, pipelineQueue, webhookQueue string) *Queue {
	return &Queue{
		Client:        asynq.NewClient(opt),
		Inspector:     asynq.NewInspector(opt),
		pipelineQueue: pipelineQueue,
		webhookQueue:  webhookQueue,
	}
}

func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}

// StageTaskID is the task id used for a stage. A stage already queued for the
// same entity is not queued twice.
func StageTaskID(stage model.Stage, id string) string {
	return string(stage) + ":" + id
}

// NewStageTask builds the task for running stage on id.
func NewStageTask(stage model.Stage, id, queue string) (*asynq.Task, error) {
	taskType, ok := stageTasks[stage]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	payload, err := json.Marshal(StagePayload{ID: id})
	if err != nil {
		return nil, err
	}
	// Failed stages are retried by the processor scan, not by the queue.
	return asynq.NewTask(taskType, payload,
		asynq.TaskID(StageTaskID(stage, id)),
		asynq.Queue(queue),
		asynq.MaxRetry(0),
	), nil
}

// Dispatch queues a stage. A duplicate of a task still in the queue is not an error.
// A finished or archived task holding the same id is cleared and the stage queued again.
func (q *Queue) Dispatch(ctx context.Context, stage model.Stage, id string) error {
	ctx, span := tracer.Start(ctx, "Dispatching stage")
	defer span.End()

	task, err := NewStageTask(stage, id, q.pipelineQueue)
	if err != nil {
		return err
	}
	taskID := StageTaskID(stage, id)
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		cleared, clearErr := q.clearSettledTask(taskID)
		if clearErr != nil {
			span.RecordError(clearErr)
			return clearErr
		}
		if !cleared {
			logrus.WithField("task_id", taskID).Debug("stage already queued")
			return nil
		}
		info, err = q.Client.EnqueueContext(ctx, task)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logrus.WithField("task_id", taskID).Debug("stage already queued")
			return nil
		}
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	logrus.WithFields(logrus.Fields{
		"task_id": info.ID,
		"queue":   info.Queue,
	}).Info("stage queued")
	return nil
}

// clearSettledTask deletes the task with taskID when it is archived or completed,
// and reports whether it did.
func (q *Queue) clearSettledTask(taskID string) (bool, error) {
	info, err := q.Inspector.GetTaskInfo(q.pipelineQueue, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect task %s: %w", taskID, err)
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false, nil
	}
	if err := q.Inspector.DeleteTask(q.pipelineQueue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete %s task %s: %w", info.State, taskID, err)
	}
	logrus.WithFields(logrus.Fields{
		"task_id": taskID,
		"state":   info.State.String(),
	}).Info("cleared settled stage task")
	return true, nil
}

// EnqueueWebhook queues an event for outbound delivery.
func (q *Queue) EnqueueWebhook(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskWebhook, payload, asynq.Queue(q.webhookQueue), asynq.MaxRetry(webhookMaxRetry))
	if _, err := q.Client.EnqueueContext(ctx, task); err != nil {
		return err
	}
	return nil
}

// HandleStageTask runs the stage named by the task type.
func (l *Labsync) HandleStageTask(ctx context.Context, t *asynq.Task) error {
	stage, ok := taskStages[t.Type()]
	if !ok {
		return fmt.Errorf("unknown task type %q: %w", t.Type(), asynq.SkipRetry)
	}
	var payload StagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ID == "" {
		return fmt.Errorf("invalid %s payload: %w", t.Type(), asynq.SkipRetry)
	}

	if _, err := l.RunStage(ctx, stage, payload.ID); err != nil {
		logrus.WithFields(logrus.Fields{
			"stage": stage,
			"id":    payload.ID,
			"class": ClassifyError(err),
		}).Warnf("queued stage failed: %v", err)
		return err
	}
	return nil
}

// RegisterTaskHandlers wires the stage tasks into mux.
func (l *Labsync) RegisterTaskHandlers(mux *asynq.ServeMux) {
	for taskType := range taskStages {
		mux.HandleFunc(taskType, l.HandleStageTask)
	}
}
