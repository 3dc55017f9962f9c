package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voicely/internal/app"
	"voicely/pkg/systemd"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	go systemd.RunWatchdog(ctx)
	systemd.NotifyReady()

	err = a.Run(ctx)
	systemd.NotifyStopping()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
