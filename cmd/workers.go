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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/labsync/labsync"
	"github.com/labsync/labsync/config"
	redis_db "github.com/labsync/labsync/internal/redis-db"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeQueues weights stage work ahead of webhook delivery.
func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.PipelineQueue: 3,
		cfg.Queue.WebhookQueue:  1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logrus.WithFields(logrus.Fields{
				"task":    task.Type(),
				"retried": retried,
			}).Warnf("task failed: %v", err)
		}),
	}), nil
}

func initializeTaskHandlers(app *labsyncInstance, mux *asynq.ServeMux) {
	app.labsync.RegisterTaskHandlers(mux)
	mux.HandleFunc(labsync.TaskWebhook, labsync.WebhookSenderFromConfig(app.cnf.Notification).ProcessWebhook)
}

func startMonitoring(conf *config.Configuration) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		logrus.Errorf("asynqmon disabled: %v", err)
		return
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
	log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
	if err := http.ListenAndServe(monitoringAddr, h); err != nil {
		logrus.Errorf("could not start asynqmon server: %v", err)
	}
}

// workerCommands starts the stage and webhook workers and schedules the engine.
func workerCommands(app *labsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start labsync workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := setupLabsync(ctx, app); err != nil {
				app.alerter.NotifyError(err)
				log.Fatal(err)
			}
			defer app.close()

			shutdown, err := initializeObservability(ctx, app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logrus.Errorf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(app.cnf, initializeQueues(app.cnf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			go startMonitoring(app.cnf)

			processor := newProcessor(app, statsStore(app))
			processor.Start(ctx)
			defer func() {
				processor.Stop()
				processor.Wait()
			}()

			// Run blocks until SIGINT or SIGTERM.
			if err := srv.Run(mux); err != nil {
				logrus.Errorf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
