package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

type editFunc func(store nitf.ByteStore) ([]nitf.FieldEdit, error)

// runEdits opens path read-write, applies fn and records one audit entry
// per changed field.
func runEdits(path, auditPath string, fn editFunc) ([]common.PatchEntry, error) {
	before, _, err := common.Sha256OfFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	store := nitf.NewFileStore(f)
	if err := nitf.CheckVersion(store); err != nil {
		f.Close()
		return nil, err
	}
	edits, err := fn(store)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	after, _, err := common.Sha256OfFile(path)
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(path)
	var log *common.PatchLog
	if auditPath != "" {
		log = common.NewPatchLog(auditPath)
	}
	entries := make([]common.PatchEntry, 0, len(edits))
	for _, e := range edits {
		entry := common.PatchEntry{
			ID:           common.NewOpID(),
			Op:           common.OpSetField,
			Path:         abs,
			Field:        e.Field.String(),
			Offset:       e.Offset,
			BeforeHex:    hex.EncodeToString(e.Before),
			AfterHex:     hex.EncodeToString(e.After),
			BeforeSHA256: before,
			AfterSHA256:  after,
		}
		if log != nil {
			if entry, err = log.Append(entry); err != nil {
				return entries, fmt.Errorf("append audit: %w", err)
			}
		}
		common.Logf("%s: %s at %d set to %q", path, e.Field, e.Offset, e.After)
		entries = append(entries, entry)
	}
	return entries, nil
}

func setFieldCmd() *cli.Command {
	return &cli.Command{
		Name:      "set-field",
		Usage:     "Overwrite a fixed-width text field of the file header",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Usage: "field name, e.g. FTITLE", Required: true},
			&cli.StringFlag{Name: "value", Usage: "new value, space padded to the field width", Required: true},
			&cli.StringFlag{Name: "audit", Usage: "append an audit entry to this JSONL log"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			field, err := nitf.ParseField(cmd.String("field"))
			if err != nil {
				return err
			}
			value := cmd.String("value")
			entries, err := runEdits(path, cmd.String("audit"), func(store nitf.ByteStore) ([]nitf.FieldEdit, error) {
				e, err := nitf.WriteText(store, field, value)
				if err != nil {
					return nil, err
				}
				return []nitf.FieldEdit{e}, nil
			})
			if err != nil {
				return fmt.Errorf("set %s: %w", field, err)
			}
			printEdits(cmd, entries)
			return nil
		},
	}
}

func stampCmd() *cli.Command {
	return &cli.Command{
		Name:      "stamp",
		Usage:     "Update the title, originator, station or date of a container",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "new FTITLE"},
			&cli.StringFlag{Name: "originator", Usage: "new ONAME"},
			&cli.StringFlag{Name: "station", Usage: "new OSTAID"},
			&cli.BoolFlag{Name: "now", Usage: "set FDT to the current UTC time"},
			&cli.StringFlag{Name: "audit", Usage: "append audit entries to this JSONL log"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			type change struct {
				field nitf.FieldID
				value string
			}
			var changes []change
			for _, c := range []struct {
				flag  string
				field nitf.FieldID
			}{{"title", nitf.FTITLE}, {"originator", nitf.ONAME}, {"station", nitf.OSTAID}} {
				if cmd.IsSet(c.flag) {
					changes = append(changes, change{c.field, cmd.String(c.flag)})
				}
			}
			if cmd.Bool("now") {
				changes = append(changes, change{nitf.FDT, time.Now().UTC().Format(nitf.DateTimeLayout)})
			}
			if len(changes) == 0 {
				return errors.New("stamp: nothing to change; pass --title, --originator, --station or --now")
			}
			// Encode everything first so a bad value leaves the file untouched.
			for _, c := range changes {
				if _, err := nitf.EncodeText(c.field, c.value); err != nil {
					return err
				}
			}
			entries, err := runEdits(path, cmd.String("audit"), func(store nitf.ByteStore) ([]nitf.FieldEdit, error) {
				var edits []nitf.FieldEdit
				for _, c := range changes {
					e, err := nitf.WriteText(store, c.field, c.value)
					if err != nil {
						return edits, err
					}
					edits = append(edits, e)
				}
				return edits, nil
			})
			if err != nil {
				return fmt.Errorf("stamp: %w", err)
			}
			printEdits(cmd, entries)
			return nil
		},
	}
}

func printEdits(cmd *cli.Command, entries []common.PatchEntry) {
	w := out(cmd)
	for _, e := range entries {
		after, _ := e.AfterBytes()
		fmt.Fprintf(w, "%s @%d = %q (op %s)\n", e.Field, e.Offset, after, e.ID)
	}
}
