// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

// progressReporter forwards non-decreasing percentages to a ProgressFunc.
// Values below 100 are capped at 99; only done reports 100.
type progressReporter struct {
	fn   ProgressFunc
	last int
}

// newProgressReporter wraps fn; nil fn makes every report a no-op.
func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

// report emits percent clamped to [last, 99].
func (p *progressReporter) report(percent int, message string) {
	if p == nil || p.fn == nil {
		return
	}

	if percent > 99 {
		percent = 99
	}
	if percent < p.last {
		percent = p.last
	}

	p.last = percent
	p.fn(percent, message)
}

// done emits 100.
func (p *progressReporter) done(message string) {
	if p == nil || p.fn == nil {
		return
	}

	p.last = 100
	p.fn(100, message)
}
