/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redline-team/redline/server"
	"github.com/redline-team/redline/server/backend/storage/gateway"
	"github.com/redline-team/redline/server/backend/storage/mongo"
	"github.com/redline-team/redline/server/logging"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath string
	flagLogLevel string

	gatewayBaseURL string

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoPingTimeout       time.Duration
	mongoDatabase          string

	authRequestTimeout  time.Duration
	authMaxWaitInterval time.Duration
	authCacheTTL        time.Duration

	saveDebounce  time.Duration
	saveTimeout   time.Duration
	loadTimeout   time.Duration
	idleGrace     time.Duration
	sweepInterval time.Duration

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start Redline server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Auth.RequestTimeout = authRequestTimeout.String()
			conf.Auth.MaxWaitInterval = authMaxWaitInterval.String()
			conf.Auth.CacheTTL = authCacheTTL.String()

			conf.Sessions.SaveDebounce = saveDebounce.String()
			conf.Sessions.SaveTimeout = saveTimeout.String()
			conf.Sessions.LoadTimeout = loadTimeout.String()
			conf.Sessions.IdleGrace = idleGrace.String()
			conf.Sessions.SweepInterval = sweepInterval.String()

			if gatewayBaseURL != "" {
				conf.Gateway = &gateway.Config{
					BaseURL:        gatewayBaseURL,
					RequestTimeout: server.DefaultGatewayRequestTimeout.String(),
				}
			}

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					PingTimeout:       mongoPingTimeout.String(),
					Database:          mongoDatabase,
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			r, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := r.Start(); err != nil {
				return err
			}

			if code := handleSignal(r); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(r *server.Redline) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-r.ShutdownCh():
		// redline is already shutdown
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := r.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.Transport.Port,
		"port",
		server.DefaultPort,
		"Port to listen on for synchronization connections",
	)
	cmd.Flags().StringVar(
		&conf.Transport.CertFile,
		"cert-file",
		"",
		"TLS certification file's path",
	)
	cmd.Flags().StringVar(
		&conf.Transport.KeyFile,
		"key-file",
		"",
		"TLS key file's path",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"pprof-enabled",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().StringVar(
		&conf.Backend.StorageType,
		"storage-type",
		server.DefaultStorageType,
		"Snapshot storage backend: memory, gateway or mongo",
	)
	cmd.Flags().StringVar(
		&gatewayBaseURL,
		"gateway-base-url",
		"",
		"Base URL of the external document-storage service",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&mongoDatabase,
		"mongo-database",
		server.DefaultMongoDatabase,
		"Mongo DB's database name",
	)
	cmd.Flags().StringVar(
		&conf.Auth.WebhookURL,
		"auth-webhook-url",
		"",
		"URL of the access-check webhook",
	)
	cmd.Flags().DurationVar(
		&authRequestTimeout,
		"auth-request-timeout",
		server.DefaultAuthRequestTimeout,
		"Timeout of a single access-check request",
	)
	cmd.Flags().Uint64Var(
		&conf.Auth.MaxRetries,
		"auth-max-retries",
		server.DefaultAuthMaxRetries,
		"Maximum retry count of the access check",
	)
	cmd.Flags().DurationVar(
		&authMaxWaitInterval,
		"auth-max-wait-interval",
		server.DefaultAuthMaxWaitInterval,
		"Maximum wait interval between access-check retries",
	)
	cmd.Flags().IntVar(
		&conf.Auth.CacheSize,
		"auth-cache-size",
		server.DefaultAuthCacheSize,
		"Size of the access decision cache",
	)
	cmd.Flags().DurationVar(
		&authCacheTTL,
		"auth-cache-ttl",
		server.DefaultAuthCacheTTL,
		"TTL of cached access decisions",
	)
	cmd.Flags().BoolVar(
		&conf.Auth.FailOpen,
		"auth-fail-open",
		false,
		"Admit connections with a degraded identity when the access service is unreachable",
	)
	cmd.Flags().StringVar(
		&conf.Auth.JWTSecret,
		"auth-jwt-secret",
		"",
		"Shared secret for local token verification instead of the webhook",
	)
	cmd.Flags().DurationVar(
		&saveDebounce,
		"save-debounce",
		server.DefaultSaveDebounce,
		"Quiescence interval after the last update before the snapshot is saved",
	)
	cmd.Flags().DurationVar(
		&saveTimeout,
		"save-timeout",
		server.DefaultSaveTimeout,
		"Timeout of a single snapshot save",
	)
	cmd.Flags().DurationVar(
		&loadTimeout,
		"load-timeout",
		server.DefaultLoadTimeout,
		"Timeout of the snapshot load at session start",
	)
	cmd.Flags().DurationVar(
		&idleGrace,
		"idle-grace",
		server.DefaultIdleGrace,
		"How long a session with no connections stays resident",
	)
	cmd.Flags().DurationVar(
		&sweepInterval,
		"sweep-interval",
		server.DefaultSweepInterval,
		"How often the registry looks for idle sessions",
	)

	rootCmd.AddCommand(cmd)
}
