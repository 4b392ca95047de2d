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
	"os"

	"github.com/google/uuid"
	"github.com/labsync/labsync"
	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/database"
	"github.com/labsync/labsync/internal/cache"
	"github.com/labsync/labsync/internal/llm"
	redlock "github.com/labsync/labsync/internal/lock"
	"github.com/labsync/labsync/internal/notification"
	redis_db "github.com/labsync/labsync/internal/redis-db"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const llmCacheLocalSize = 1000

// Labsync represents the CLI application, encapsulating the root Cobra command.
type Labsync struct {
	cmd *cobra.Command
}

// labsyncInstance holds what the start and workers commands share. It is filled
// by setupLabsync; migrate and config only need cnf.
type labsyncInstance struct {
	labsync *labsync.Labsync
	cnf     *config.Configuration
	redis   *redis_db.Redis
	queue   *labsync.Queue
	alerter *notification.Alerter
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration before any command runs.
func preRun(app *labsyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		app.cnf = cnf
		app.alerter = notification.NewAlerter(cnf.Notification.Slack.WebhookUrl, nil)
		return nil
	}
}

// setupLabsync connects the data source, Redis and the model, and wires the
// notifiers and the stage dispatcher.
func setupLabsync(ctx context.Context, app *labsyncInstance) error {
	cfg := app.cnf

	ds, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	rdb, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKeys:      cfg.LLM.Keys(),
		Model:        cfg.LLM.Model,
		Timeout:      cfg.LLM.RequestTimeout(),
		MaxKeyErrors: cfg.LLM.MaxKeyErrors,
	})
	if err != nil {
		return fmt.Errorf("error creating model client: %v", err)
	}
	generator := llm.NewCachedGenerator(gemini, cache.NewCache(rdb.Client(), llmCacheLocalSize), "llm", cfg.LLM.CacheTTL())

	queue, err := labsync.NewQueue(cfg)
	if err != nil {
		return fmt.Errorf("error creating queue: %v", err)
	}

	notifiers := labsync.MultiNotifier{labsync.NewRedisNotifier(rdb.Client(), cfg.Notification.Channel)}
	if cfg.Notification.Webhook.Url != "" {
		notifiers = append(notifiers, labsync.NewWebhookNotifier(queue))
	}

	app.labsync = labsync.NewLabsync(ds, generator,
		labsync.WithNotifier(notifiers),
		labsync.WithDispatcher(queue),
		labsync.WithRetryOptions(labsync.RetryOptionsFromConfig(cfg.Pipeline)),
	)
	app.redis = rdb
	app.queue = queue
	return nil
}

// newProcessor builds the engine. Replicas share the cycle lock when it is enabled.
// publisher may be nil.
func newProcessor(app *labsyncInstance, publisher labsync.StatsPublisher) *labsync.Processor {
	locker := redlock.NewLocker(app.redis.Client(), redlock.CycleKey, uuid.NewString())
	opts := labsync.ProcessorOptionsFromConfig(app.cnf.Pipeline, locker)
	opts.Alert = app.alerter.NotifyError
	opts.Publisher = publisher
	return labsync.NewProcessor(app.labsync, opts)
}

// statsStore shares engine counters through redis. A snapshot survives a few missed cycles.
func statsStore(app *labsyncInstance) *labsync.RedisStatsStore {
	return labsync.NewRedisStatsStore(app.redis.Client(), 3*app.cnf.Pipeline.Interval())
}

func (app *labsyncInstance) close() {
	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			logrus.Warnf("error closing queue: %v", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logrus.Warnf("error closing redis: %v", err)
		}
	}
}

func NewCLI() *Labsync {
	var configFile string
	app := &labsyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "labsync",
		Short: "Turns meeting messages into budgets and allocations",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./labsync.json", "Configuration file for labsync")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Labsync{cmd: rootCmd}
}

func (w Labsync) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
