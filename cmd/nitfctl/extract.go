package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

func kindFlag() cli.Flag {
	return &cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "segment kind (image, graphic, text, des, res)", Required: true}
}

// extractMode resolves the --subheader and --data-only flags against the
// kind's default.
func extractMode(cmd *cli.Command, k nitf.SegmentKind) (nitf.ExtractMode, error) {
	sub, data := cmd.Bool("subheader"), cmd.Bool("data-only")
	switch {
	case sub && data:
		return 0, errors.New("--subheader and --data-only are mutually exclusive")
	case sub:
		return nitf.WithSubheader, nil
	case data:
		return nitf.DataOnly, nil
	default:
		return nitf.DefaultMode(k), nil
	}
}

func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

type extractJob struct {
	File   string
	Kind   nitf.SegmentKind
	Index  int // -1 extracts every element
	OutDir string
	Prefix string
	Mode   nitf.ExtractMode
}

// runExtract writes the requested elements into OutDir and returns the
// number of elements and bytes written.
func runExtract(job extractJob) (int, int64, error) {
	store, closeFn, err := openRead(job.File, false)
	if err != nil {
		return 0, 0, err
	}
	defer closeFn()
	if job.Prefix == "" {
		job.Prefix = baseName(job.File)
	}
	if err := os.MkdirAll(job.OutDir, 0o755); err != nil {
		return 0, 0, err
	}
	var written int64
	sink := nitf.FileSink(job.OutDir, job.Prefix)
	counting := func(k nitf.SegmentKind, i int, data []byte) error {
		written += int64(len(data))
		return sink(k, i, data)
	}
	if job.Index >= 0 {
		data, err := nitf.ExtractElement(store, job.Kind, job.Index, job.Mode)
		if err != nil {
			return 0, 0, err
		}
		return 1, int64(len(data)), counting(job.Kind, job.Index, data)
	}
	n, err := nitf.ExtractAll(store, job.Kind, job.Mode, counting)
	return n, written, err
}

func extractCmd() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Write one or all elements of a segment kind to files",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "element index; all elements when omitted"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory", Value: "."},
			&cli.StringFlag{Name: "prefix", Usage: "file name prefix (default: input base name)"},
			&cli.BoolFlag{Name: "subheader", Usage: "include the element subheader"},
			&cli.BoolFlag{Name: "data-only", Usage: "write the payload only"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			kind, err := nitf.ParseSegmentKind(cmd.String("kind"))
			if err != nil {
				return err
			}
			mode, err := extractMode(cmd, kind)
			if err != nil {
				return err
			}
			job := extractJob{
				File:   path,
				Kind:   kind,
				Index:  -1,
				OutDir: cmd.String("out"),
				Prefix: cmd.String("prefix"),
				Mode:   mode,
			}
			if cmd.IsSet("index") {
				job.Index = int(cmd.Int("index"))
				if job.Index < 0 {
					return fmt.Errorf("invalid index %d", job.Index)
				}
			}
			n, size, err := runExtract(job)
			if err != nil {
				return fmt.Errorf("extract %s from %s: %w", kind, path, err)
			}
			common.Logf("extracted %d %s element(s) from %s", n, kind, path)
			fmt.Fprintf(out(cmd), "Extracted %d %s element(s), %s (%s) to %s\n",
				n, kind, common.FormatBytes(size), mode, job.OutDir)
			return nil
		},
	}
}

func pairsCmd() *cli.Command {
	return &cli.Command{
		Name:      "pairs",
		Usage:     "Print the raw length pair of one element",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "element index", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			kind, err := nitf.ParseSegmentKind(cmd.String("kind"))
			if err != nil {
				return err
			}
			store, closeFn, err := openRead(path, false)
			if err != nil {
				return err
			}
			defer closeFn()
			index := int(cmd.Int("index"))
			raw, err := nitf.DescriptorPairs(store, kind, index)
			if err != nil {
				return err
			}
			off, err := nitf.ElementDescriptorOffset(store, kind, index)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s[%d] @%d %s %q\n", kind, index, off, hex.EncodeToString(raw), raw)
			return nil
		},
	}
}
