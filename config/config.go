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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_UPDATES_CHANNEL = "labsync:updates"
	DEFAULT_PIPELINE_QUEUE  = "pipeline_queue"
	DEFAULT_WEBHOOK_QUEUE   = "webhook_queue"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"LABSYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"LABSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LABSYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"LABSYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"LABSYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"LABSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LABSYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"LABSYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"LABSYNC_REDIS_SKIP_TLS_VERIFY"`
}

// LLMConfig configures the Gemini generator. Keys come from APIKeys plus the three
// GEMINI_API_KEY variables.
type LLMConfig struct {
	APIKeys           []string `json:"api_keys" envconfig:"LABSYNC_LLM_API_KEYS"`
	GeminiAPIKey      string   `json:"gemini_api_key" envconfig:"GEMINI_API_KEY"`
	GeminiAPIKey2     string   `json:"gemini_api_key_2" envconfig:"GEMINI_API_KEY_2"`
	GeminiAPIKey3     string   `json:"gemini_api_key_3" envconfig:"GEMINI_API_KEY_3"`
	Model             string   `json:"model" envconfig:"LABSYNC_LLM_MODEL"`
	RequestTimeoutSec int      `json:"request_timeout_sec" envconfig:"LABSYNC_LLM_REQUEST_TIMEOUT_SEC"`
	CacheTTLSec       int      `json:"cache_ttl_sec" envconfig:"LABSYNC_LLM_CACHE_TTL_SEC"`
	MaxKeyErrors      int      `json:"max_key_errors" envconfig:"LABSYNC_LLM_MAX_KEY_ERRORS"`
}

// Keys returns every configured key, APIKeys first.
func (c LLMConfig) Keys() []string {
	keys := append([]string{}, c.APIKeys...)
	for _, k := range []string{c.GeminiAPIKey, c.GeminiAPIKey2, c.GeminiAPIKey3} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c LLMConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

type PipelineConfig struct {
	IntervalSec    int  `json:"interval_sec" envconfig:"LABSYNC_PIPELINE_INTERVAL_SEC"`
	BatchSize      int  `json:"batch_size" envconfig:"LABSYNC_PIPELINE_BATCH_SIZE"`
	MaxRetries     int  `json:"max_retries" envconfig:"LABSYNC_PIPELINE_MAX_RETRIES"`
	InitialDelayMs int  `json:"initial_delay_ms" envconfig:"LABSYNC_PIPELINE_INITIAL_DELAY_MS"`
	MaxDelayMs     int  `json:"max_delay_ms" envconfig:"LABSYNC_PIPELINE_MAX_DELAY_MS"`
	UseCycleLock   bool `json:"use_cycle_lock" envconfig:"LABSYNC_PIPELINE_USE_CYCLE_LOCK"`
	LockTTLSec     int  `json:"lock_ttl_sec" envconfig:"LABSYNC_PIPELINE_LOCK_TTL_SEC"`
}

func (c PipelineConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

func (c PipelineConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

func (c PipelineConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func (c PipelineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSec) * time.Second
}

type QueueConfig struct {
	PipelineQueue  string `json:"pipeline_queue" envconfig:"LABSYNC_QUEUE_PIPELINE_QUEUE"`
	WebhookQueue   string `json:"webhook_queue" envconfig:"LABSYNC_QUEUE_WEBHOOK_QUEUE"`
	Concurrency    int    `json:"concurrency" envconfig:"LABSYNC_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"LABSYNC_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LABSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LABSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LABSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"LABSYNC_SLACK_WEBHOOK_URL"`
}

// WebhookConfig is the endpoint pipeline events are posted to.
type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"LABSYNC_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
	Channel string        `json:"channel" envconfig:"LABSYNC_NOTIFICATION_CHANNEL"`
}

// TelemetryConfig points the OTLP trace exporter at a collector.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"LABSYNC_TELEMETRY_ENABLED"`
	OtlpEndpoint string `json:"otlp_endpoint" envconfig:"LABSYNC_TELEMETRY_OTLP_ENDPOINT"`
	OtlpHeaders  string `json:"otlp_headers" envconfig:"LABSYNC_TELEMETRY_OTLP_HEADERS"`
	OtlpProtocol string `json:"otlp_protocol" envconfig:"LABSYNC_TELEMETRY_OTLP_PROTOCOL"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"LABSYNC_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	LLM          LLMConfig        `json:"llm"`
	Pipeline     PipelineConfig   `json:"pipeline"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Telemetry    TelemetryConfig  `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("labsync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called labsync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "LabSync"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.LLM.addDefaults()
	cnf.Pipeline.addDefaults()
	cnf.Queue.addDefaults()

	if cnf.Notification.Channel == "" {
		cnf.Notification.Channel = DEFAULT_UPDATES_CHANNEL
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (c *LLMConfig) addDefaults() {
	if c.Model == "" {
		c.Model = "gemini-flash-latest"
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 60
	}
	if c.CacheTTLSec <= 0 {
		c.CacheTTLSec = 86400
	}
	if c.MaxKeyErrors <= 0 {
		c.MaxKeyErrors = 3
	}
}

func (c *PipelineConfig) addDefaults() {
	if c.IntervalSec <= 0 {
		c.IntervalSec = 20
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelayMs <= 0 {
		c.InitialDelayMs = 2000
	}
	if c.MaxDelayMs <= 0 {
		c.MaxDelayMs = 10000
	}
	if c.LockTTLSec <= 0 {
		c.LockTTLSec = 600
	}
}

func (c *QueueConfig) addDefaults() {
	if c.PipelineQueue == "" {
		c.PipelineQueue = DEFAULT_PIPELINE_QUEUE
	}
	if c.WebhookQueue == "" {
		c.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.MonitoringPort == "" {
		c.MonitoringPort = DEFAULT_MONITORING_PORT
	}
}

// SetOtelExporterEnvs exports the telemetry settings as the standard OTEL_EXPORTER_OTLP_* variables.
func SetOtelExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	envs := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": cnf.Telemetry.OtlpEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  cnf.Telemetry.OtlpHeaders,
		"OTEL_EXPORTER_OTLP_PROTOCOL": cnf.Telemetry.OtlpProtocol,
	}
	for k, v := range envs {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
