package main

import (
	"flag"
	"io"
	"log/slog"

	"github.com/ardnew/usbncm/internal/config"
	"github.com/ardnew/usbncm/pkg"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	config  string
	verbose bool
	jsonLog bool
	mps     int
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "HCL configuration `file`")
	fs.BoolVar(&f.verbose, "v", false, "enable verbose (debug) logging")
	fs.BoolVar(&f.jsonLog, "json", false, "use JSON log format")
	fs.IntVar(&f.mps, "mps", 0, "bulk endpoint max packet size (overrides the file)")
}

// load reads the configuration file, or the defaults when none was given,
// applies flag overrides and configures logging.
func (f *commonFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}

	if f.mps != 0 {
		cfg.Network.MaxPacketSize = f.mps
	}
	if f.jsonLog {
		cfg.LogFormat = "json"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ApplyLogging()
	if f.verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	return cfg, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
