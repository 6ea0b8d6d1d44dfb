package cli

import (
	"fmt"

	"github.com/harun/toolbelt/internal/config"
	"github.com/harun/toolbelt/internal/daemon"
	"github.com/harun/toolbelt/internal/logger"
)

// loadConfig reads and validates the configuration. The --log-level flag
// wins over the file; one-shot commands default to warn so logs do not
// drown their output.
func loadConfig(opts *rootOptions, oneShot bool) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.logLevel != "":
		cfg.Logging.Level = opts.logLevel
	case oneShot:
		cfg.Logging.Level = "warn"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:          cfg.Logging.Level,
		File:           cfg.Logging.File,
		Console:        cfg.Logging.Console,
		Pretty:         cfg.Logging.Pretty,
		Redaction:      cfg.Logging.Redaction,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
}

// openDaemon builds a daemon without starting it. The returned func
// releases it.
func openDaemon(opts *rootOptions) (*daemon.Daemon, func(), error) {
	cfg, err := loadConfig(opts, true)
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}

	return d, func() {
		_ = d.Close()
		_ = log.Close()
	}, nil
}
