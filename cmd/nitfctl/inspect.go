package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/report"
)

// openRead opens path for reading, through mmap when requested.
func openRead(path string, useMmap bool) (nitf.ByteStore, func() error, error) {
	if useMmap {
		m, err := nitf.OpenMmap(path)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return nitf.NewFileStore(f), f.Close, nil
}

func buildReport(path string, useMmap bool) (report.LayoutReport, error) {
	sha, _, err := common.Sha256OfFile(path)
	if err != nil {
		return report.LayoutReport{}, err
	}
	store, closeFn, err := openRead(path, useMmap)
	if err != nil {
		return report.LayoutReport{}, err
	}
	defer closeFn()
	rep, err := report.Build(path, sha, store)
	if err != nil {
		return report.LayoutReport{}, fmt.Errorf("inspect %s: %w", path, err)
	}
	return rep, nil
}

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the layout of a container and check its consistency",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the layout as JSON"},
			&cli.BoolFlag{Name: "mmap", Usage: "read through a memory map"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			rep, err := buildReport(path, cmd.Bool("mmap"))
			if err != nil {
				return err
			}
			w := out(cmd)
			if cmd.Bool("json") {
				b, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(b))
				return err
			}
			l := rep.Layout
			fmt.Fprintf(w, "File:    %s\n", path)
			fmt.Fprintf(w, "SHA256:  %s\n", rep.SHA256)
			fmt.Fprintf(w, "Version: %s\n", l.Version)
			fmt.Fprintf(w, "FL=%d HL=%d size=%d\n\n", l.FileLength, l.HeaderLength, l.StoreLength)

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCOUNT\tDESCRIPTORS\tDATA START\tDATA END")
			for _, k := range l.Kinds {
				fmt.Fprintf(tw, "%s\t%d\t%d-%d\t%d\t%d\n", k.Name, k.Count,
					k.Descriptors.Start, k.Descriptors.End, k.Data.Start, k.Data.End)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(w)
			if len(rep.Problems) == 0 {
				fmt.Fprintln(w, "Consistency: PASS")
				return nil
			}
			fmt.Fprintln(w, "Consistency: FAIL")
			for _, p := range rep.Problems {
				fmt.Fprintf(w, "  %s\n", p)
			}
			return nil
		},
	}
}

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render the layout report as PDF",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "PDF output path", Required: true},
			&cli.StringFlag{Name: "json", Usage: "also write the report as JSON to this path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			rep, err := buildReport(path, false)
			if err != nil {
				return err
			}
			if err := report.SaveLayoutPDF(rep, cmd.String("out")); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			if p := cmd.String("json"); p != "" {
				if err := report.SaveLayoutJSON(rep, p); err != nil {
					return fmt.Errorf("write json: %w", err)
				}
			}
			fmt.Fprintf(out(cmd), "Report written to %s\n", cmd.String("out"))
			return nil
		},
	}
}
