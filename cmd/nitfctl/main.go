package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	var closeLog func() error
	return &cli.Command{
		Name:  "nitfctl",
		Usage: "Inspect, extract and splice NITF containers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-file", Usage: "also write logs to this rotating file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log to stderr"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			c, err := setupLogging(cmd.String("log-file"), cmd.Bool("verbose"))
			closeLog = c
			return ctx, err
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inspectCmd(),
			extractCmd(),
			pairsCmd(),
			spliceCmd(),
			setFieldCmd(),
			stampCmd(),
			undoCmd(),
			reportCmd(),
			batchCmd(),
			versionCmd(),
		},
	}
}

// setupLogging routes common.Logf to stderr when verbose and to a rotating
// file when path is set. Without either, logs are discarded.
func setupLogging(path string, verbose bool) (func() error, error) {
	var writers []io.Writer
	if verbose {
		writers = append(writers, os.Stderr)
	}
	closeFn := func() error { return nil }
	if path != "" {
		lj, err := common.RotatingWriter(common.LogConfig{
			Directory: filepath.Dir(path),
			FileName:  filepath.Base(path),
		})
		if err != nil {
			return closeFn, err
		}
		writers = append(writers, lj)
		closeFn = lj.Close
	}
	if len(writers) == 0 {
		common.SetLogOutput(nil)
	} else {
		common.SetLogOutput(io.MultiWriter(writers...))
	}
	return closeFn, nil
}

// out is where command results are printed.
func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// fileArg returns the single positional path argument.
func fileArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one FILE argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Fprintf(out(cmd), "nitfctl %s (built %s)\n", version, buildDate)
			return nil
		},
	}
}
