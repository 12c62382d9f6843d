package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/biru/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-s string   AT-Protocol server hostname
//	-r string   handle backend base URL
//	-d string   session database path
//	-k string   token key file path
//	-w int      debounce delay in milliseconds
//	-t int      request timeout in seconds
//	-l string   log level
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-r", "-d", "-k", "-w", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Server, "s", cfg.Server, "AT-Protocol server hostname")
	fs.StringVar(&cfg.RegistryURL, "r", cfg.RegistryURL, "handle backend base URL")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "session database path")
	fs.StringVar(&cfg.KeyPath, "k", cfg.KeyPath, "token key file path")
	debounce := fs.Int("w", int(cfg.DebounceDelay.Milliseconds()), "debounce delay (in milliseconds)")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.DebounceDelay = time.Duration(*debounce) * time.Millisecond
	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
