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
	"os/signal"
	"syscall"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/labsync/labsync"
	"github.com/labsync/labsync/api"
	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/internal/socket"
	trace "github.com/labsync/labsync/internal/traces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const certStoragePath = ".certmagic"

// serveTLS starts an HTTPS server whose certificates are obtained and renewed by CertMagic.
// Without a domain it serves localhost.
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: certStoragePath}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func initializeTracing(ctx context.Context) (trace.ShutdownFunc, error) {
	if err := config.SetOtelExporterEnvs(); err != nil {
		return nil, fmt.Errorf("error setting OTel exporter env: %v", err)
	}
	shutdown, err := trace.SetupOTelSDK(ctx, "LABSYNC")
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// initializeObservability returns a no-op shutdown when telemetry is disabled.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (trace.ShutdownFunc, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	return initializeTracing(ctx)
}

// relayUpdates forwards events published by any process into the dashboard room.
// It returns when ctx is done.
func relayUpdates(ctx context.Context, app *labsyncInstance, hub *socket.Hub) {
	err := labsync.RelayUpdates(ctx, app.redis.Client(), app.cnf.Notification.Channel, func(ev labsync.Event) {
		hub.Broadcast(socket.UpdatesRoom, ev.Name, ev.Data)
	})
	if err != nil {
		app.alerter.NotifyError(fmt.Errorf("dashboard relay stopped: %w", err))
	}
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands starts the HTTP API. The engine is not scheduled here: the API
// process only runs cycles on request.
func serverCommands(app *labsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start labsync server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			hub := socket.NewHub()
			defer hub.Close()
			go relayUpdates(ctx, app, hub)

			router := api.NewAPI(app.labsync, newProcessor(app, nil), hub, app.cnf).
				WithPublishedStats(statsStore(app)).
				Router()

			errCh := make(chan error, 1)
			go func() { errCh <- startServer(router, app.cnf.Server) }()

			select {
			case err := <-errCh:
				if err != nil {
					log.Fatal(err)
				}
			case <-ctx.Done():
				logrus.Info("shutting down labsync server")
			}
		},
	}

	return cmd
}
