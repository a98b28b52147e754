package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethosn/cascadec/pkg/ncf"

	"github.com/urfave/cli/v3"
)

func extractCMMCmd() *cli.Command {
	var input, output string

	return &cli.Command{
		Name:  "extract-cmm",
		Usage: "Recover a command stream and binding table from a raw CMM hex-dump capture",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to the hex-dump capture",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path to write the recovered .ncf file",
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			entries, streamBytes, err := ncf.ExtractCMM(data)
			if err != nil {
				return fmt.Errorf("extract cmm: %w", err)
			}

			section("Binding table")
			for _, e := range entries {
				row(fmt.Sprintf("buffer %d", e.ID), fmt.Sprintf("kind=%s addr=0x%x size=%d", e.Kind, e.Address, e.Size))
			}

			if output == "" {
				return nil
			}

			f, err := ncf.OpenBytes(streamBytes)
			if err != nil {
				return fmt.Errorf("parse recovered stream: %w", err)
			}
			defer func() { _ = f.Close() }()

			stream, err := f.Cascade()
			if err != nil {
				return fmt.Errorf("decode cascade: %w", err)
			}

			if err := ncf.WriteCascadeFile(output, stream); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			return nil
		},
	}
}
