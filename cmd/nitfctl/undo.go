package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

// runUndo reverts one audited operation and records the undo in the log.
func runUndo(auditPath, id string, force bool) (common.PatchEntry, error) {
	entries, err := common.ReadPatchLog(auditPath)
	if err != nil {
		return common.PatchEntry{}, fmt.Errorf("read audit: %w", err)
	}
	target, err := common.UndoTarget(entries, id)
	if err != nil {
		return common.PatchEntry{}, err
	}
	current, _, err := common.Sha256OfFile(target.Path)
	if err != nil {
		return common.PatchEntry{}, err
	}

	var restored string
	switch target.Op {
	case common.OpSetField:
		restored, err = undoFieldEdit(target, force)
	case common.OpSplice:
		restored, err = undoSplice(target, current, force)
	default:
		err = fmt.Errorf("cannot undo %q entries", target.Op)
	}
	if err != nil {
		return common.PatchEntry{}, fmt.Errorf("undo %s %s: %w", target.Op, target.ID, err)
	}

	return common.NewPatchLog(auditPath).Append(common.PatchEntry{
		Op:           common.OpUndo,
		Ref:          target.ID,
		Path:         target.Path,
		Field:        target.Field,
		Kind:         target.Kind,
		Offset:       target.Offset,
		BeforeHex:    target.AfterHex,
		AfterHex:     target.BeforeHex,
		BeforeSHA256: current,
		AfterSHA256:  restored,
	})
}

func undoFieldEdit(entry common.PatchEntry, force bool) (string, error) {
	before, err := entry.BeforeBytes()
	if err != nil {
		return "", fmt.Errorf("decode beforeHex: %w", err)
	}
	after, err := entry.AfterBytes()
	if err != nil {
		return "", fmt.Errorf("decode afterHex: %w", err)
	}
	if len(before) == 0 || len(before) != len(after) {
		return "", errors.New("entry has no reversible bytes")
	}
	f, err := os.OpenFile(entry.Path, os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	store := nitf.NewFileStore(f)
	cur := make([]byte, len(after))
	if _, err := f.ReadAt(cur, entry.Offset); err != nil || !bytes.Equal(cur, after) {
		if !force {
			f.Close()
			return "", fmt.Errorf("bytes at %d no longer match the edit; use --force to restore anyway", entry.Offset)
		}
		common.Logf("undo %s: bytes at %d changed since the edit, restoring anyway", entry.ID, entry.Offset)
	}
	err = nitf.ApplyPatch(store, []nitf.PatchEdit{{Offset: entry.Offset, Data: before}})
	if err == nil {
		err = store.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	sum, _, err := common.Sha256OfFile(entry.Path)
	return sum, err
}

func undoSplice(entry common.PatchEntry, current string, force bool) (string, error) {
	if entry.Backup == "" {
		return "", errors.New("splice was run without a backup")
	}
	if current != entry.AfterSHA256 && !force {
		return "", fmt.Errorf("%s changed since the splice; use --force to restore anyway", entry.Path)
	}
	sum, err := common.RestoreBackup(entry.Backup, entry.Path)
	if err != nil {
		return "", err
	}
	if entry.BeforeSHA256 != "" && sum != entry.BeforeSHA256 {
		return sum, fmt.Errorf("restored SHA256 %s does not match the pre-splice %s", sum, entry.BeforeSHA256)
	}
	return sum, nil
}

func undoCmd() *cli.Command {
	return &cli.Command{
		Name:  "undo",
		Usage: "Revert the newest audited edit or splice, or the one with --id",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "audit", Usage: "audit log (jsonl)", Required: true},
			&cli.StringFlag{Name: "id", Usage: "operation id to revert"},
			&cli.BoolFlag{Name: "force", Usage: "revert even if the file changed afterwards"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			entry, err := runUndo(cmd.String("audit"), cmd.String("id"), cmd.Bool("force"))
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprintf(w, "Reverted %s on %s\n", entry.Ref, entry.Path)
			fmt.Fprintf(w, "SHA256: %s -> %s\n", entry.BeforeSHA256, entry.AfterSHA256)
			return nil
		},
	}
}
