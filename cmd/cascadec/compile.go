package main

import (
	"context"
	"fmt"

	"github.com/ethosn/cascadec/internal/compiler"
	"github.com/ethosn/cascadec/internal/config"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/ncf"
	"github.com/ethosn/cascadec/pkg/npu"

	"github.com/urfave/cli/v3"
)

func compileCmd() *cli.Command {
	var (
		networkPath string
		outputPath  string
	)

	return &cli.Command{
		Name:  "compile",
		Usage: "Compile a network description into an NCF command-stream file",
		Flags: append(append(commonCompileFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "network",
				Aliases:     []string{"n"},
				Usage:       "path to a network.json operator graph",
				Required:    true,
				Destination: &networkPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path to write the compiled .ncf file",
				Required:    true,
				Destination: &outputPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()

			caps, ok := hwcaps.ByName(capabilityName)
			if !ok {
				return fmt.Errorf("unknown capability %q", capabilityName)
			}

			opts := config.DefaultOptions()
			if configPath != "" {
				fileOpts, fileCap, err := config.LoadYAML(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				opts = fileOpts
				if fileCap != "" && !cmd.IsSet("capability") {
					if c, ok := hwcaps.ByName(fileCap); ok {
						caps = c
					}
				}
			}

			if stripeConfigPath != "" {
				overrides, err := config.ParseStripeConfigOverride(stripeConfigPath)
				if err != nil {
					return fmt.Errorf("load stripe config: %w", err)
				}
				if len(overrides) > 0 {
					log.Warn("stripe config overrides are matched against section names the planner does not yet expose; applying the first section as a whole-network override", "sections", len(overrides))
					opts.StrategiesEnabled = overrides[0].Config
					opts.BlockConfigsEnabled = overrides[0].BlockConfigs
				}
			}

			var reqVersion npu.Version
			if requestedVersion != "" {
				major, minor, patch, err := parseVersion(requestedVersion)
				if err != nil {
					return err
				}
				reqVersion = npu.Version{Major: major, Minor: minor, Patch: patch}
			}

			og, err := loadNetwork(networkPath)
			if err != nil {
				return err
			}

			result, err := compiler.Compile(og, compiler.Options{
				Caps:             caps,
				Compilation:      opts,
				EstimationMode:   estimationMode,
				Log:              log,
				RequestedVersion: reqVersion,
			})
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			if err := ncf.WriteCascadeFile(outputPath, result.Stream); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			log.Info("compiled network", "agents", len(result.Stream.Agents), "output", outputPath)
			return nil
		},
	}
}
