// Package main starts the POS device sync agent process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	posagentcmd "github.com/GetwithitMan/gwi-pos-sub015/internal/cmd/posagent"
)

func main() {
	cfg, err := posagentcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[POSAGENT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := posagentcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to sync: %v", err)
	}
}
