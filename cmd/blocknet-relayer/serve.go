// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blocknet/relayer/config"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/node"
)

var (
	configDir   string
	nodeKeyPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relayer node",
	Long:  "serve starts the relay HTTP API, the metrics and health endpoints, and the node's background consensus and peer-heartbeat loops.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory containing environment config files")
	serveCmd.Flags().StringVar(&nodeKeyPath, "node-key", "node.key", "path to the node's persisted signing key")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configureLogging(cfg)

	if err := os.MkdirAll(cfg.RelayerStoragePath, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	n, err := node.New(cfg, nodeKeyPath)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping node")
	return n.Wait()
}

func configureLogging(cfg *config.Config) {
	if cfg.Logging == nil {
		return
	}
	level := logger.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}
	l := logger.NewLogger(os.Stdout, level)
	l.SetPrettyPrint(cfg.Logging.Format != "json")
	logger.SetDefaultLogger(l)
}
