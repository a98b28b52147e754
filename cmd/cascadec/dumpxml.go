package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethosn/cascadec/pkg/ncf"

	"github.com/urfave/cli/v3"
)

func dumpXMLCmd() *cli.Command {
	var input, output string

	return &cli.Command{
		Name:  "dump-xml",
		Usage: "Convert a compiled .ncf file's Cascade section to its XML mirror",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to the .ncf file",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path to write the XML file",
				Required:    true,
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := ncf.Open(input)
			if err != nil {
				return fmt.Errorf("open %s: %w", input, err)
			}
			defer func() { _ = f.Close() }()

			stream, err := f.Cascade()
			if err != nil {
				return fmt.Errorf("decode cascade: %w", err)
			}

			data, err := ncf.MarshalXML(stream)
			if err != nil {
				return fmt.Errorf("marshal xml: %w", err)
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			return nil
		},
	}
}
