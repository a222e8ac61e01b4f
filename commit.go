// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"errors"
	"fmt"
	"os"
)

// transientBackupSuffix marks originals held aside while a multi-file commit is in flight.
const transientBackupSuffix = ".rebuild-old"

// commitPair is one temporary file and its final path.
type commitPair struct {
	tmp    string
	target string
	// backup is where the previous target was moved; empty if there was none.
	backup string
	placed bool
}

// commitRebuildOutput moves temporary output into place.
//
// A single file without backups is replaced by one rename. Otherwise the
// existing targets are moved aside first and restored if any rename fails,
// so a V1 pair is never left half-replaced.
func commitRebuildOutput(out *rebuildOutput, target rebuildTarget, backupKeep int) error {
	pairs := []commitPair{{tmp: out.dataTmp, target: target.dataPath}}
	if out.dirTmp != "" {
		pairs = append(pairs, commitPair{tmp: out.dirTmp, target: target.dirPath})
	}

	if !target.inPlace {
		backupKeep = 0
	}

	if backupKeep == 0 && len(pairs) == 1 {
		if err := os.Rename(out.dataTmp, target.dataPath); err != nil {
			return fmt.Errorf("rename %s to %s: %w", out.dataTmp, target.dataPath, err)
		}

		return nil
	}

	for i := range pairs {
		backup, err := moveTargetAside(pairs[i].target, backupKeep)
		if err != nil {
			return errors.Join(err, rollbackCommit(pairs))
		}

		pairs[i].backup = backup
	}

	for i := range pairs {
		if err := os.Rename(pairs[i].tmp, pairs[i].target); err != nil {
			err = fmt.Errorf("rename %s to %s: %w", pairs[i].tmp, pairs[i].target, err)
			return errors.Join(err, rollbackCommit(pairs))
		}

		pairs[i].placed = true
	}

	if backupKeep > 0 {
		return nil
	}

	for _, pair := range pairs {
		if pair.backup == "" {
			continue
		}

		if err := removeIfExists(pair.backup); err != nil {
			return err
		}
	}

	return nil
}

// moveTargetAside renames an existing target to its backup slot and returns
// the backup path (empty when target does not exist).
func moveTargetAside(target string, keep int) (string, error) {
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	backupPath := target + ".bak"
	if keep == 0 {
		backupPath = target + transientBackupSuffix
	}

	if err := prepareBackupSlot(backupPath, keep); err != nil {
		return "", err
	}

	if err := os.Rename(target, backupPath); err != nil {
		return "", fmt.Errorf("move %s to backup: %w", target, err)
	}

	return backupPath, nil
}

// rollbackCommit restores moved-aside originals and removes placed outputs.
func rollbackCommit(pairs []commitPair) error {
	var errs []error
	for _, pair := range pairs {
		switch {
		case pair.backup != "":
			if err := rollbackFromBackup(pair.target, pair.backup); err != nil {
				errs = append(errs, err)
			}
		case pair.placed:
			if err := removeIfExists(pair.target); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
