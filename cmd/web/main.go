// Copyright (c) 2026 Oarsense
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/oarsense/rowmon/internal/app"
	"github.com/oarsense/rowmon/internal/config"
)

func main() {
	configPath := flag.String("config", "rowmon.toml", "path to config file")
	flag.Parse()

	log.Println("starting rowmon web server (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: calibration requires the monitor process to be running")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
