// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

/*
Package img reads, edits and rebuilds IMG archives used by GTA III, Vice City
and San Andreas.

Two layouts are supported:
  - V1 (GTA III / Vice City): headerless data file plus a paired .dir file;
  - V2 (San Andreas): one file starting with "VER2" and an entry count.

All offsets and sizes are counted in 2048-byte sectors. Entry names are at
most 23 bytes and compared case-insensitively.

Edits are held in memory: payloads added or replaced with AddEntry live in
the Archive until Rebuild writes a compact archive to a temporary file and
atomically swaps it in place. The original file is never modified before
that swap.

# Reading

Open an archive and read entries:

	a, err := img.Open("gta3.img")
	if err != nil {
	    return err
	}
	for _, e := range a.Entries() {
	    data, err := a.ReadEntry(e)
	    if err != nil {
	        return err
	    }
	    _ = data
	}

V1 pairs may be opened through either file:

	a, err := img.Open("models/gta3.dir")

For metadata-only scans:

	entries, err := img.ListEntries("gta3.img")
	if err != nil {
	    return err
	}
	_ = entries

# Formats

Entry payloads can be classified by the format subpackage:

	if err := a.AnalyzeFormats(ctx, 0); err != nil {
	    return err
	}
	for _, e := range a.Entries() {
	    info, _ := e.Format()
	    fmt.Println(e.Name, info.Label)
	}

# Editing

Add, replace, rename, delete and restore entries in memory:

	if err := a.AddEntry("player.dff", dff); err != nil {
	    return err
	}
	a.DeleteEntriesByName("old.txd")
	_ = a.RestoreDeletedEntry("old.txd")

# Rebuilding

Write all pending changes and continue with the returned archive:

	a, err = a.Rebuild(ctx, img.RebuildOptions{
	    BackupKeep: 1,
	    Verify:     true,
	    OnProgress: func(percent int, message string) {
	        log.Printf("%3d%% %s", percent, message)
	    },
	})
	if err != nil {
	    return err
	}

Rebuild can also convert between layouts or write elsewhere:

	_, err = a.Rebuild(ctx, img.RebuildOptions{
	    OutputPath: "gta3_sa.img",
	    Version:    img.V2,
	})

# Extracting

Extract selected entries to a directory with filesystem-safe names:

	err := a.Extract(ctx, "out", img.ExtractOptions{
	    Rules: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.txd"},
	    },
	})
*/
package img
