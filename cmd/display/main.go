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

	log.Println("starting rowmon OLED display")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
