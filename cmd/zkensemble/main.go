// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command zkensemble prints the resolved connection string of a coordination
// service ensemble, or keeps watching it with --watch.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bufbuild/zkensemble"
	"github.com/bufbuild/zkensemble/config"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, err := config.NewConfig(args)
	if errors.Cause(err) == pflag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		return 1
	}
	if err := cfg.Adjust(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to adjust config: %v\n", err)
		return 1
	}

	logger, err := cfg.Log.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	if configFile := cfg.ConfigFileUsed(); configFile != "" {
		logger.Info("load configuration from file.", zap.String("file-name", configFile))
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("failed to validate config", zap.Error(err))
		return 1
	}
	provider, err := cfg.NewProvider(logger)
	if err != nil {
		logger.Error("failed to create provider", zap.Error(err))
		return 1
	}
	logger.Info("resolving ensemble",
		zap.String("connect-string", cfg.ConnectString),
		zap.String("namespace", cfg.Namespace))

	if !cfg.Watch {
		fmt.Fprintln(stdout, provider.ConnectionStringContext(ctx))
		return 0
	}
	if err := watch(ctx, cfg, provider, logger, stdout); err != nil {
		logger.Error("watch failed", zap.Error(err))
		return 1
	}
	return 0
}

// watch prints every change of the ensemble until ctx is cancelled.
func watch(
	ctx context.Context,
	cfg *config.Config,
	provider *zkensemble.ResolvingProvider,
	logger *zap.Logger,
	stdout io.Writer,
) error {
	changes := make(chan string)
	watcher := zkensemble.NewWatcher(provider,
		zkensemble.ReceiverFunc(func(connectionString string) {
			select {
			case changes <- connectionString:
			case <-ctx.Done():
			}
		}),
		zkensemble.WithPollInterval(cfg.PollInterval),
		zkensemble.WithWatcherLogger(logger),
	)

	group, ctx := errgroup.WithContext(ctx)
	watcher.Start(ctx)
	group.Go(func() error {
		for {
			select {
			case connectionString := <-changes:
				if _, err := fmt.Fprintln(stdout, connectionString); err != nil {
					return errors.Wrap(err, "write connection string")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("stop watching", zap.Error(context.Cause(ctx)))
		return watcher.Close()
	})
	return group.Wait()
}
