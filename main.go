package main

import (
	"flag"
	"log"

	"antsupport/config"
	"antsupport/server"
)

func main() {
	cfgPath := flag.String("config", "", "путь к config.yaml (по умолчанию ищется рядом и в /etc/antsupport)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var app server.App
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
