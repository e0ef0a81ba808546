package main

import (
	"flag"
	"os"
)

var version = "dev"

// cliConfig holds the handful of flags that select how the rest of the
// gateway's configuration is loaded; everything else comes from the
// environment (see internal/config).
type cliConfig struct {
	envFile     string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.envFile, "env-file", "", "optional .env file to pre-load")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
