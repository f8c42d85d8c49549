package config

import (
	"flag"
	"os"

	"github.com/pinvault/pinvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   path/DSN of the local sqlite store
//	-t int      idle auto-lock interval in minutes (0 disables)
//
// The function filters os.Args to only include the flags it knows about, so
// it does not interfere with flags owned by other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path of the local database")
	fs.IntVar(&cfg.TimeoutMinutes, "t", cfg.TimeoutMinutes, "idle auto-lock interval in minutes (0 disables)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
