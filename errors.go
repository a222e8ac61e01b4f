// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for IMG operations. Use errors.Is in callers.
var (
	// ErrFileNotFound means the archive file or its paired .dir file does not exist.
	ErrFileNotFound = errors.New("archive file not found")
	// ErrParse means the archive header or directory cannot be parsed.
	ErrParse = errors.New("malformed IMG archive")
	// ErrInvalidHeader means the IMG file is missing or has a bad header.
	ErrInvalidHeader = fmt.Errorf("%w: missing or bad header", ErrParse)
	// ErrUnsupportedVersion means the archive version is not V1 or V2.
	ErrUnsupportedVersion = errors.New("unsupported IMG version")
	// ErrNilArchive means the archive is nil.
	ErrNilArchive = errors.New("archive is nil")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrSizeOverflow means a size or offset does not fit the on-disk field.
	ErrSizeOverflow = errors.New("size exceeds IMG field limit")
	// ErrHashMismatch means written entry content does not match its expected digest.
	ErrHashMismatch = errors.New("entry content hash mismatch")
	// ErrInvalidExtractPath means entry name is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means resolved extraction path escapes destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")

	// ErrValidation is the parent of all single-mutation validation failures.
	ErrValidation = errors.New("entry validation failed")
	// ErrEmptyEntryName means the entry name is empty after normalization.
	ErrEmptyEntryName = fmt.Errorf("%w: empty entry name", ErrValidation)
	// ErrEmptyEntryData means the entry payload is empty.
	ErrEmptyEntryData = fmt.Errorf("%w: empty entry data", ErrValidation)
	// ErrInvalidEntryName means the entry name contains bytes that cannot be stored.
	ErrInvalidEntryName = fmt.Errorf("%w: invalid entry name", ErrValidation)
	// ErrDuplicateEntryName means the name collides (case-insensitive) with another live entry.
	ErrDuplicateEntryName = fmt.Errorf("%w: duplicate entry name", ErrValidation)

	// ErrRebuild is the parent of all rebuild failures.
	ErrRebuild = errors.New("rebuild failed")
	// ErrCancelled means the rebuild was cancelled by the caller.
	ErrCancelled = fmt.Errorf("%w: cancelled", ErrRebuild)
)

// RebuildError describes a failed rebuild. The original archive file and
// the in-memory Archive are left untouched when it is returned.
type RebuildError struct {
	// Stage names the rebuild phase that failed.
	Stage string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *RebuildError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("rebuild: %v", e.Err)
	}

	return fmt.Sprintf("rebuild %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the rebuild kind and the underlying cause to errors.Is.
func (e *RebuildError) Unwrap() []error {
	if isCancellation(e.Err) {
		return []error{ErrCancelled, e.Err}
	}

	return []error{ErrRebuild, e.Err}
}

// newRebuildError wraps err for stage unless it is already a RebuildError.
func newRebuildError(stage string, err error) error {
	if err == nil {
		return nil
	}

	var rebuildErr *RebuildError
	if errors.As(err, &rebuildErr) {
		return err
	}

	return &RebuildError{Stage: stage, Err: err}
}

// isCancellation reports whether err comes from context cancellation or deadline.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
