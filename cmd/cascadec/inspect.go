package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethosn/cascadec/pkg/ncf"

	"github.com/urfave/cli/v3"
)

func inspectCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print a summary of a compiled .ncf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to the .ncf file",
				Required:    true,
				Destination: &path,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := ncf.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			section("Header")
			row("magic", string(f.Header.Magic[:]))
			row("version", fmt.Sprintf("%d.%d", f.Header.Major, f.Header.Minor))
			rowInt("sections", int(f.Header.SectionCount))
			row("file size", formatBytes(f.Header.FileSize))
			row("compatible", fmt.Sprintf("%v", f.Header.Compatible()))

			entry := f.Section(ncf.SectionCascade)
			if entry == nil {
				fmt.Println("\nno Cascade section present")
				return nil
			}

			stream, err := f.Cascade()
			if err != nil {
				return fmt.Errorf("decode cascade: %w", err)
			}

			section("Cascade")
			rowInt("agents", len(stream.Agents))
			rowInt("dma read commands", len(stream.DmaRd))
			rowInt("dma write commands", len(stream.DmaWr))
			rowInt("mce commands", len(stream.Mce))
			rowInt("ple commands", len(stream.Ple))

			section("Agents")
			for i, a := range stream.Agents {
				row(fmt.Sprintf("agent %d", i), a.Kind.String())
			}

			return nil
		},
	}
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-24s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
