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
	flag.Parse()

	log.Println("starting optical-ruler web monitor (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logging.Init(config.Get().LogMode); err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer logging.Sync()

	log.Println("Note: /api topics populate once the producer is running (./producer)")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
