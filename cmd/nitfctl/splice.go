package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

type spliceJob struct {
	Kind      nitf.SegmentKind
	Donor     string
	Host      string
	Audit     string
	BackupDir string
	NoBackup  bool

	// hostStore wraps the opened host; nil means nitf.NewFileStore.
	hostStore func(*os.File) nitf.ByteStore
}

type spliceOutcome struct {
	ID           string
	Result       nitf.SpliceResult
	Backup       string
	BeforeSHA256 string
	AfterSHA256  string
}

// backupPath names the pre-splice copy of host for operation id.
func backupPath(host, dir, id string) string {
	if dir == "" {
		dir = filepath.Dir(host)
	}
	return filepath.Join(dir, filepath.Base(host)+"."+id+common.BackupExt)
}

// runSplice splices job.Kind from the donor into the host in place. Unless
// disabled, the host is first backed up so the splice can be undone.
func runSplice(job spliceJob) (spliceOutcome, error) {
	id := common.NewOpID()
	res := spliceOutcome{ID: id}

	donor, closeDonor, err := openRead(job.Donor, false)
	if err != nil {
		return res, err
	}
	defer closeDonor()

	if !job.NoBackup {
		res.Backup = backupPath(job.Host, job.BackupDir, id)
		sum, err := common.WriteBackup(job.Host, res.Backup)
		if err != nil {
			os.Remove(res.Backup)
			return res, fmt.Errorf("backup host: %w", err)
		}
		res.BeforeSHA256 = sum
	} else {
		sum, _, err := common.Sha256OfFile(job.Host)
		if err != nil {
			return res, err
		}
		res.BeforeSHA256 = sum
	}
	discardBackup := func() {
		if res.Backup != "" {
			os.Remove(res.Backup)
		}
	}

	f, err := os.OpenFile(job.Host, os.O_RDWR, 0)
	if err != nil {
		discardBackup()
		return res, err
	}
	var host nitf.ByteStore = nitf.NewFileStore(f)
	if job.hostStore != nil {
		host = job.hostStore(f)
	}
	result, err := nitf.SpliceKind(job.Kind, donor, host)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := res.recoverHost(job.Host); rerr != nil {
			return res, errors.Join(err, rerr)
		}
		return res, err
	}
	res.Result = result
	if result.DonorCount == 0 {
		discardBackup()
		res.Backup = ""
		res.AfterSHA256 = res.BeforeSHA256
		return res, nil
	}
	if res.AfterSHA256, _, err = common.Sha256OfFile(job.Host); err != nil {
		return res, err
	}
	if job.Audit != "" {
		abs, _ := filepath.Abs(job.Host)
		donorAbs, _ := filepath.Abs(job.Donor)
		_, err := common.NewPatchLog(job.Audit).Append(common.PatchEntry{
			ID:           id,
			Op:           common.OpSplice,
			Path:         abs,
			Kind:         job.Kind.String(),
			Donor:        donorAbs,
			BeforeSHA256: res.BeforeSHA256,
			AfterSHA256:  res.AfterSHA256,
			Backup:       res.Backup,
		})
		if err != nil {
			return res, fmt.Errorf("append audit: %w", err)
		}
	}
	return res, nil
}

// recoverHost returns host to its pre-splice bytes after a failed splice.
// The backup is removed only once the host hashes to BeforeSHA256; if that
// cannot be established the backup stays on disk.
func (res *spliceOutcome) recoverHost(host string) error {
	if sum, _, err := common.Sha256OfFile(host); err == nil && sum == res.BeforeSHA256 {
		if res.Backup != "" {
			os.Remove(res.Backup)
			res.Backup = ""
		}
		return nil
	}
	if res.Backup == "" {
		return fmt.Errorf("host %s was modified by the failed splice and no backup was taken", host)
	}
	restored, err := common.RestoreBackup(res.Backup, host)
	if err != nil {
		return fmt.Errorf("restore %s from %s: %w", host, res.Backup, err)
	}
	if restored != res.BeforeSHA256 {
		return fmt.Errorf("restored %s hashes to %s, want %s; backup kept at %s", host, restored, res.BeforeSHA256, res.Backup)
	}
	os.Remove(res.Backup)
	res.Backup = ""
	return nil
}

func spliceCmd() *cli.Command {
	return &cli.Command{
		Name:  "splice",
		Usage: "Append every element of one kind from a donor container to a host container",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.StringFlag{Name: "donor", Usage: "container supplying the elements", Required: true},
			&cli.StringFlag{Name: "host", Usage: "container modified in place", Required: true},
			&cli.StringFlag{Name: "audit", Usage: "append an audit entry to this JSONL log"},
			&cli.StringFlag{Name: "backup-dir", Usage: "directory for the pre-splice backup (default: next to the host)"},
			&cli.BoolFlag{Name: "no-backup", Usage: "skip the pre-splice backup; the splice cannot be undone"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kind, err := nitf.ParseSegmentKind(cmd.String("kind"))
			if err != nil {
				return err
			}
			res, err := runSplice(spliceJob{
				Kind:      kind,
				Donor:     cmd.String("donor"),
				Host:      cmd.String("host"),
				Audit:     cmd.String("audit"),
				BackupDir: cmd.String("backup-dir"),
				NoBackup:  cmd.Bool("no-backup"),
			})
			if err != nil {
				return fmt.Errorf("splice %s: %w", kind, err)
			}
			w := out(cmd)
			r := res.Result
			if r.DonorCount == 0 {
				fmt.Fprintf(w, "Donor has no %s elements; host unchanged\n", kind)
				return nil
			}
			fmt.Fprintf(w, "Spliced %d %s element(s): count %d -> %d\n", r.DonorCount, kind, r.HostCountBefore, r.HostCountAfter)
			fmt.Fprintf(w, "HL %d -> %d, FL %d -> %d\n", r.HeaderLengthBefore, r.HeaderLength, r.FileLengthBefore, r.FileLength)
			fmt.Fprintf(w, "Operation: %s\n", res.ID)
			if res.Backup != "" {
				fmt.Fprintf(w, "Backup:    %s\n", res.Backup)
			}
			fmt.Fprintf(w, "SHA256:    %s -> %s\n", res.BeforeSHA256, res.AfterSHA256)
			return nil
		},
	}
}
