package config

import (
	"flag"
	"os"
	"time"

	"otpkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-v", "-b", "-d", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.VaultPath, "v", cfg.VaultPath, "path to the local vault file")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "vault backend (sqlite or postgres)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "postgres connection string")
	elevationTTL := fs.Int("e", int(cfg.ElevationTTL.Seconds()), "elevation session lifetime (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ElevationTTL = time.Duration(*elevationTTL) * time.Second
}
