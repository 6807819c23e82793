// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/optical_ruler/internal/app"
	"github.com/relabs-tech/optical_ruler/internal/config"
	"github.com/relabs-tech/optical_ruler/internal/logging"
)

func main() {
	configPath := flag.String("config", "./optical_config.txt", "path to configuration file")
	dir := flag.String("dir", "", "recorded frame directory (overrides REPLAY_DIR)")
	flag.Parse()

	log.Println("starting optical-ruler replay producer (recorded frames → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()
	if err := logging.Init(cfg.LogMode); err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer logging.Sync()

	// Replay regardless of what SOURCE says.
	cfg.Source = "replay"
	if *dir != "" {
		cfg.ReplayDir = *dir
	}
	if cfg.ReplayDir == "" {
		log.Fatalf("no replay directory: set REPLAY_DIR or pass -dir")
	}

	if err := app.RunProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
