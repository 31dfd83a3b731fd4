package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/smartschedule/schedulebot/bot/app"
	"github.com/smartschedule/schedulebot/bot/config"
	corecmd "github.com/smartschedule/schedulebot/core/cmd"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			a, err := app.Bootstrap(context.Background(), cfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Printf("schedulebot: %v", err)
		os.Exit(1)
	}
}
