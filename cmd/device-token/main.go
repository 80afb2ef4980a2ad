package main

import (
	"flag"
	"os"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/platform/config"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/tools/devicecred"
)

func main() {
	cfg, err := devicecred.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := devicecred.Run(cfg, os.Stdout); err != nil {
		config.Exitf("issue token: %v", err)
	}
}
