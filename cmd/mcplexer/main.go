package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/revittco/mcplexer/internal/config"
	"github.com/revittco/mcplexer/internal/inboundauth"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mcplexer: %v\n", err)
		var cfgErr *inboundauth.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(3)
		}
		var valErr *config.ValidationError
		if errors.As(err, &valErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, args); err != nil {
		return err
	}
	return cmdServe(cfg)
}
