package main

import (
	"fmt"
	"os"

	"github.com/ethosn/cascadec/internal/logger"

	"github.com/urfave/cli/v3"
)

var (
	capabilityName   string
	configPath       string
	stripeConfigPath string
	estimationMode   bool
	requestedVersion string
	logLevel         string
	logFormat        string
)

func commonCompileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "capability",
			Aliases:     []string{"c"},
			Usage:       "target hardware capability variant name",
			Value:       "Ethos78_4Tops_4PleRatio",
			Destination: &capabilityName,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a compiler config.yaml overriding compilation options",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "stripe-config",
			Usage:       "path to an ETHOSN_SUPPORT_LIBRARY_DEBUG_STRIPE_CONFIG-style override file",
			Destination: &stripeConfigPath,
		},
		&cli.BoolFlag{
			Name:        "estimation-mode",
			Usage:       "lower unsupported operators to estimate-only placeholders instead of failing",
			Destination: &estimationMode,
		},
		&cli.StringFlag{
			Name:        "requested-version",
			Usage:       "command-stream version the caller's driver was built against (major.minor.patch)",
			Destination: &requestedVersion,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

// newLogger builds a Logger from the --log-level/--log-format flags,
// writing to stderr so stdout stays reserved for command output.
func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}

// parseVersion parses a "major.minor.patch" string into its three
// components. An empty string parses to all zeros, the sentinel
// Compile treats as "no requested version to check".
func parseVersion(s string) (major, minor, patch uint16, err error) {
	if s == "" {
		return 0, 0, 0, nil
	}
	var maj, min, pat int
	n, err := fmt.Sscanf(s, "%d.%d.%d", &maj, &min, &pat)
	if err != nil || n != 3 {
		return 0, 0, 0, fmt.Errorf("invalid version %q, want major.minor.patch", s)
	}
	return uint16(maj), uint16(min), uint16(pat), nil
}
