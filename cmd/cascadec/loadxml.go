package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethosn/cascadec/pkg/ncf"

	"github.com/urfave/cli/v3"
)

func loadXMLCmd() *cli.Command {
	var input, output string

	return &cli.Command{
		Name:  "load-xml",
		Usage: "Convert an XML cascade mirror back into a compiled .ncf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to the XML file",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path to write the .ncf file",
				Required:    true,
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			stream, err := ncf.UnmarshalXML(data)
			if err != nil {
				return fmt.Errorf("unmarshal xml: %w", err)
			}

			if err := ncf.WriteCascadeFile(output, stream); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			return nil
		},
	}
}
