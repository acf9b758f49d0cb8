// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// checkpointRecord is the on-disk shape of one Record, grounded on
// pkg/metricstore/checkpoint.go's CheckpointFile/CheckpointMetrics
// JSON-tagged structs.
type checkpointRecord struct {
	Kind       string `json:"kind"`
	Int        int64  `json:"i,omitempty"`
	Double     float64 `json:"d,omitempty"`
	Str        string  `json:"s,omitempty"`
	Ints       []int64 `json:"ints,omitempty"`
	Doubles    []float64 `json:"doubles,omitempty"`
	Buf        []byte  `json:"buf,omitempty"`
	Clock      uint64  `json:"clock"`
	TOI        uint64  `json:"toi"`
	Quality    uint32  `json:"quality"`
	Originator string  `json:"originator,omitempty"`
}

// checkpointFile is the full snapshot written to one file: every visible
// key's record, keyed by name (mirrors CheckpointFile.Metrics).
type checkpointFile struct {
	Records map[string]checkpointRecord `json:"records"`
	Clock   uint64                      `json:"clock"`
	Written int64                       `json:"written"`
}

func toCheckpointRecord(r Record) checkpointRecord {
	cr := checkpointRecord{
		Kind:       r.Value.Kind().String(),
		Clock:      r.Clock,
		TOI:        r.TOI,
		Quality:    r.Quality,
		Originator: r.Originator,
	}
	switch r.Value.Kind() {
	case KindInteger:
		cr.Int = r.Value.AsInteger()
	case KindDouble:
		cr.Double = r.Value.AsDouble()
	case KindString:
		cr.Str = r.Value.AsString("")
	case KindIntegerArray:
		cr.Ints = r.Value.IntegerArray()
	case KindDoubleArray:
		cr.Doubles = r.Value.DoubleArray()
	case KindBuffer, KindFileBuffer:
		cr.Buf = r.Value.Buffer()
	}
	return cr
}

func fromCheckpointRecord(cr checkpointRecord) Value {
	switch cr.Kind {
	case KindDouble.String():
		return NewDouble(cr.Double)
	case KindString.String():
		return NewString(cr.Str)
	case KindIntegerArray.String():
		return NewIntegerArray(cr.Ints)
	case KindDoubleArray.String():
		return NewDoubleArray(cr.Doubles)
	case KindBuffer.String():
		return NewBuffer(cr.Buf)
	case KindFileBuffer.String():
		return NewFileBuffer(cr.Buf, FileUnknown)
	default:
		return NewInteger(cr.Int)
	}
}

// SaveCheckpoint writes every visible record to a single JSON file at
// path, following the one-file-per-snapshot convention of
// pkg/metricstore/checkpoint.go's ToCheckpoint, simplified to a flat
// key space (the Knowledge Context has no cluster/host hierarchy).
func (c *Context) SaveCheckpoint(path string) error {
	c.mu.Lock()
	out := checkpointFile{
		Records: make(map[string]checkpointRecord, len(c.records)),
		Clock:   c.clock,
		Written: time.Now().Unix(),
	}
	for k, r := range c.records {
		if !r.Visible() {
			continue
		}
		out.Records[k] = toCheckpointRecord(r.snapshot())
	}
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("knowledge: checkpoint mkdir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("knowledge: checkpoint temp file: %w", err)
	}
	tmpName := f.Name()
	enc := json.NewEncoder(f)
	if err := enc.Encode(out); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("knowledge: checkpoint encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadCheckpoint restores records from a file written by SaveCheckpoint.
// Each restored record's value, clock, TOI, quality and originator are
// assigned directly, bypassing the conflict rule, so the context always
// adopts the snapshot regardless of its current quality/clock.
func (c *Context) LoadCheckpoint(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("knowledge: checkpoint open: %w", err)
	}
	defer f.Close()

	var in checkpointFile
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return fmt.Errorf("knowledge: checkpoint decode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, cr := range in.Records {
		rec := c.recordLocked(k)
		rec.Value = fromCheckpointRecord(cr)
		rec.Clock = cr.Clock
		rec.TOI = cr.TOI
		rec.Quality = cr.Quality
		rec.Originator = cr.Originator
		rec.Status = StatusModified
	}
	if in.Clock > c.clock {
		c.clock = in.Clock
	}
	return nil
}

// StartRetention starts a background worker that periodically writes a
// full checkpoint to dir/<unix-seconds>.json and keeps only the
// retention-window-worth of files, directly grounded on
// pkg/metricstore/checkpoint.go's Checkpointing ticker pattern
// (time.NewTicker + wg.Go + ctx.Done()).
func (c *Context) StartRetention(dir string, interval time.Duration, retain int) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				name := filepath.Join(dir, fmt.Sprintf("%d.json", time.Now().Unix()))
				if err := c.SaveCheckpoint(name); err != nil {
					c.logger.Errorf("checkpoint failed: %s", err)
					continue
				}
				c.logger.Debugf("checkpoint written: %s", name)
				pruneCheckpoints(dir, retain, c.logger)
			}
		}
	}()
}

var pruneMu sync.Mutex

func pruneCheckpoints(dir string, retain int, logger Logger) {
	if retain <= 0 {
		return
	}
	pruneMu.Lock()
	defer pruneMu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= retain {
		return
	}
	// filenames are unix seconds, so lexical sort is chronological.
	for i := 0; i < len(names)-retain; i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err != nil {
			logger.Warnf("failed to prune checkpoint %s: %s", names[i], err)
		}
	}
}
