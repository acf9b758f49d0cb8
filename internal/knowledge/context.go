// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package knowledge

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	madaralog "github.com/jredmondson/madara-sub009/pkg/log"
)

// Function is a native callback registered under a name in the Context's
// function registry (§3 "a function registry: name -> {built-in native
// function, KaRL expression, foreign-language callback}"). The karl
// package additionally registers compiled-KaRL-expression functions
// through the same registry.
type Function func(ctx *Context, args []Value) (Value, error)

// KeyValue is one entry of a ToVector()/GetMatches() snapshot.
type KeyValue struct {
	Key    string
	Record Record
}

// Logger is the external logging collaborator the Context defers to
// (§3's "a logger handle"), satisfied by pkg/log's package-level
// functions by default.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type defaultLogger struct{ prefix string }

func (l defaultLogger) Debugf(format string, args ...any) {
	madaralog.Debugf(l.prefix+format, args...)
}
func (l defaultLogger) Infof(format string, args ...any) {
	madaralog.Infof(l.prefix+format, args...)
}
func (l defaultLogger) Warnf(format string, args ...any) {
	madaralog.Warnf(l.prefix+format, args...)
}
func (l defaultLogger) Errorf(format string, args ...any) {
	madaralog.Errorf(l.prefix+format, args...)
}

// Context is the keyed map of records plus its modification-tracking,
// signalling, function registry, and compiled-expression cache (§3).
//
// Locking discipline (§5): a single mutex serializes every mutator and
// the send/receive snapshot path. The source uses a recursive mutex so
// filters and callbacks may re-enter Context APIs; Go's sync.Mutex is not
// recursive, so instead every exported method acquires the lock exactly
// once and delegates to an unexported *Locked helper that assumes it is
// already held. Callers that need several operations under one critical
// section (Transport's send pipeline, filters) call Lock/Unlock
// themselves and use the *Locked helpers directly — this reproduces the
// source's re-entrancy guarantee without needing a recursive primitive.
type Context struct {
	mu   sync.Mutex
	cond *sync.Cond

	records        map[string]*Record
	clock          uint64
	globalModified map[string]struct{}
	localModified  map[string]struct{}
	functions      map[string]Function

	cache *lru.Cache[string, any]

	logger  Logger
	metrics *contextMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Context at Open time.
type Option func(*Context)

// WithLogger overrides the default pkg/log-backed logger.
func WithLogger(l Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithExpressionCacheSize bounds the interpreter cache (default 256
// compiled expressions), grounded on the teacher's golang-lru/v2 use.
func WithExpressionCacheSize(n int) Option {
	return func(c *Context) {
		cache, err := lru.New[string, any](n)
		if err == nil {
			c.cache = cache
		}
	}
}

// Open constructs a ready-to-use Context. Callers must call Close when
// done to stop any background retention goroutines started via
// StartRetention.
func Open(opts ...Option) *Context {
	c := &Context{
		records:        make(map[string]*Record),
		globalModified: make(map[string]struct{}),
		localModified:  make(map[string]struct{}),
		functions:      make(map[string]Function),
		logger:         defaultLogger{prefix: "[CONTEXT] "},
	}
	c.cond = sync.NewCond(&c.mu)
	c.metrics = newContextMetrics()

	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		cache, _ := lru.New[string, any](256)
		c.cache = cache
	}

	return c
}

// Close stops any background goroutines started by StartRetention.
func (c *Context) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Lock/Unlock expose the Context's critical section to Transport (which
// must snapshot global-modified and the records it names atomically,
// §4.5 step 1) and to karl's #get_clock/#set_clock built-ins (which read
// or write a VariableReference's Record.Clock directly). Every exported
// method besides these two already takes the lock itself, so callers
// holding it must restrict themselves to the *Locked helpers below
// (SetClockLocked, GetModifiedsLocked, ...) or risk self-deadlock on
// Go's non-reentrant sync.Mutex — karl.Expression.Evaluate is NOT such a
// helper and must never run with this lock held.
func (c *Context) Lock()   { c.mu.Lock() }
func (c *Context) Unlock() { c.mu.Unlock() }

// Clock returns the current Lamport clock without advancing it.
func (c *Context) Clock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// IncClock advances and returns the Context's Lamport clock, used to
// stamp an outgoing message (§4.5 step 5: "Assign a message clock =
// Context.inc_clock()").
func (c *Context) IncClock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	return c.clock
}

func (c *Context) recordLocked(key string) *Record {
	r, ok := c.records[key]
	if !ok {
		r = newRecord()
		c.records[key] = r
		c.metrics.recordsCreated.Inc()
	}
	return r
}

func (c *Context) resolveKeyLocked(key string, expand bool) (string, error) {
	if key == "" {
		return "", fmt.Errorf("knowledge: empty key")
	}
	if expand && strings.ContainsRune(key, '{') {
		return c.expandKeyLocked(key)
	}
	return key, nil
}

// Exists reports whether key is visible (I3): present and not UNCREATED.
func (c *Context) Exists(key string, settings ...ReferenceSettings) bool {
	s := referenceSettingsOrDefault(settings)
	c.mu.Lock()
	defer c.mu.Unlock()
	rk, err := c.resolveKeyLocked(key, s.ExpandVariables)
	if err != nil {
		return false
	}
	return c.records[rk].Visible()
}

func referenceSettingsOrDefault(settings []ReferenceSettings) ReferenceSettings {
	if len(settings) > 0 {
		return settings[0]
	}
	return DefaultReferenceSettings()
}

func updateSettingsOrDefault(settings []UpdateSettings) UpdateSettings {
	if len(settings) > 0 {
		return settings[0]
	}
	return DefaultUpdateSettings()
}

// Get returns the value of key, or the zero integer Value if the key is
// absent or UNCREATED (I3; getters on missing keys return a zero-valued
// Record of integer type, §6).
func (c *Context) Get(key string, settings ...ReferenceSettings) Value {
	s := referenceSettingsOrDefault(settings)
	c.mu.Lock()
	defer c.mu.Unlock()
	rk, err := c.resolveKeyLocked(key, s.ExpandVariables)
	if err != nil {
		return ZeroInteger
	}
	rec := c.records[rk]
	if !rec.Visible() {
		return ZeroInteger
	}
	return rec.Value
}

// VariableReference is an opaque handle into a map entry (§4.1 get_ref).
// It survives any number of value mutations on that key but is
// invalidated by Erase or Context teardown — using an invalidated handle
// after Erase is documented as dangerous, matching the source.
type VariableReference struct {
	key string
	rec *Record
}

func (v *VariableReference) Key() string { return v.key }

// RecordClock/SetRecordClock give the karl package's #get_clock/#set_clock
// built-ins direct access to a record's clock through a handle. Callers
// must hold the owning Context's lock (via Context.Lock/Unlock) around
// these calls, the same discipline as GetModifiedsLocked.
func (v *VariableReference) RecordClock() uint64    { return v.rec.Clock }
func (v *VariableReference) SetRecordClock(c uint64) { v.rec.Clock = c }

// SetClockLocked sets the Context's own Lamport clock; caller must hold
// the lock. Used by karl's #set_clock() (no-variable form).
func (c *Context) SetClockLocked(v uint64) { c.clock = v }

// GetRef returns a stable handle to key's map entry, creating it lazily
// if absent (§3 Lifecycles: "created lazily on first write or first
// reference request").
func (c *Context) GetRef(key string) *VariableReference {
	c.mu.Lock()
	defer c.mu.Unlock()
	rk, err := c.resolveKeyLocked(key, true)
	if err != nil {
		return nil
	}
	return &VariableReference{key: rk, rec: c.recordLocked(rk)}
}

// Set applies a local, typed write under the §4.1 conflict rule (local
// writes use this Context's own clock/quality as the "incoming" side,
// mirroring KnowledgeBaseImpl's setters in the original source).
func (c *Context) Set(key string, v Value, settings ...UpdateSettings) (int, error) {
	s := updateSettingsOrDefault(settings)
	if key == "" {
		return ReturnNullOrEmptyKey, fmt.Errorf("knowledge: empty key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rk, err := c.resolveKeyLocked(key, s.ExpandVariables)
	if err != nil {
		return ReturnNullOrEmptyKey, err
	}
	rec := c.recordLocked(rk)
	return c.applyLocalWriteLocked(rk, rec, v, s)
}

// SetFromRef applies a write through a handle obtained via GetRef,
// skipping key lookup and brace expansion (§4.1).
func (c *Context) SetFromRef(ref *VariableReference, v Value, settings ...UpdateSettings) (int, error) {
	if ref == nil {
		return ReturnNullOrEmptyKey, fmt.Errorf("knowledge: nil reference")
	}
	s := updateSettingsOrDefault(settings)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocalWriteLocked(ref.key, ref.rec, v, s)
}

func (c *Context) applyLocalWriteLocked(key string, rec *Record, v Value, s UpdateSettings) (int, error) {
	increment := s.ClockIncrement
	if increment == 0 {
		increment = 1
	}

	writerID := "" // the local process writes with its own quality/clock, no tie-break needed for local writes
	w := writeAttempt{
		Value:      v,
		Clock:      rec.Clock + increment,
		Quality:    max32(rec.WriteQuality, rec.Quality),
		Originator: writerID,
	}

	accepted := resolveConflict(rec, w, s.AlwaysOverwrite)
	if !accepted {
		c.metrics.writesRejected.WithLabelValues("quality").Inc()
		return ReturnQualityRejected, nil
	}

	rec.TOI = uint64(time.Now().Unix())
	c.metrics.writesAccepted.Inc()

	global := !IsLocalKey(key) && !s.TreatGlobalsAsLocals
	if global {
		c.globalModified[key] = struct{}{}
	}
	if s.TrackLocalChanges {
		c.localModified[key] = struct{}{}
	}

	if s.SignalChanges {
		c.cond.Broadcast()
		c.metrics.broadcasts.Inc()
	}

	return ReturnAccepted, nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// ApplyRemoteWrite is the entry point used by the transport's receive
// pipeline (§4.5 step 5): it applies the §4.1 conflict rule using the
// quality/clock/originator carried by the wire record.
func (c *Context) ApplyRemoteWrite(key, originator string, v Value, clock uint64, quality uint32, settings ...UpdateSettings) (int, error) {
	s := updateSettingsOrDefault(settings)
	if key == "" {
		return ReturnNullOrEmptyKey, fmt.Errorf("knowledge: empty key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rk, err := c.resolveKeyLocked(key, s.ExpandVariables)
	if err != nil {
		return ReturnNullOrEmptyKey, err
	}
	rec := c.recordLocked(rk)

	w := writeAttempt{Value: v, Clock: clock, Quality: quality, Originator: originator}
	accepted := resolveConflict(rec, w, s.AlwaysOverwrite)
	if !accepted {
		c.metrics.writesRejected.WithLabelValues("quality").Inc()
		return ReturnQualityRejected, nil
	}

	rec.TOI = uint64(time.Now().Unix())
	c.metrics.writesAccepted.Inc()

	if clock > c.clock {
		c.clock = clock
	}

	global := !IsLocalKey(rk) && !s.TreatGlobalsAsLocals
	if global {
		c.globalModified[rk] = struct{}{}
	}
	if s.TrackLocalChanges {
		c.localModified[rk] = struct{}{}
	}

	if s.SignalChanges {
		c.cond.Broadcast()
		c.metrics.broadcasts.Inc()
	}

	return ReturnAccepted, nil
}

// Inc/Dec are the arithmetic convenience setters (§4.1).
func (c *Context) Inc(key string, amount int64, settings ...UpdateSettings) (int64, error) {
	cur := c.Get(key)
	next := cur.AsInteger() + amount
	if _, err := c.Set(key, NewInteger(next), settings...); err != nil {
		return 0, err
	}
	return next, nil
}

func (c *Context) Dec(key string, amount int64, settings ...UpdateSettings) (int64, error) {
	return c.Inc(key, -amount, settings...)
}

// Erase removes key from the map entirely. Dangerous: invalidates any
// outstanding VariableReference to it (§3 Lifecycles).
func (c *Context) Erase(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
	delete(c.globalModified, key)
	delete(c.localModified, key)
}

// ToVector returns all visible records whose key has the given prefix
// ("" matches everything), sorted by key for deterministic iteration
// (§3 "iteration for debug must be deterministic given a sort").
func (c *Context) ToVector(prefix string) []KeyValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []KeyValue
	for k, r := range c.records {
		if !r.Visible() || !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, KeyValue{Key: k, Record: r.snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ToMap is ToVector("") flattened to a key->Value map.
func (c *Context) ToMap() map[string]Value {
	kvs := c.ToVector("")
	out := make(map[string]Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Record.Value
	}
	return out
}

// GetMatches returns all visible records whose key matches a simple glob
// pattern ('*' wildcard, as in a shell pattern), sorted by key.
func (c *Context) GetMatches(pattern string) []KeyValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []KeyValue
	for k, r := range c.records {
		if !r.Visible() {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, KeyValue{Key: k, Record: r.snapshot()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GetModifiedsLocked returns a snapshot view of global-modified, valid
// only while the caller holds the lock (§4.1 "Iteration for send" —
// "the view is valid only while the Context is locked"). Callers must
// Lock() before calling and Unlock() after copying what they need.
func (c *Context) GetModifiedsLocked() []KeyValue {
	out := make([]KeyValue, 0, len(c.globalModified))
	for k := range c.globalModified {
		rec := c.records[k]
		if rec == nil {
			continue
		}
		out = append(out, KeyValue{Key: k, Record: rec.snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResetModified clears the entire global-modified set. Clearing never
// deletes records (I4).
func (c *Context) ResetModified() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalModified = make(map[string]struct{})
}

// ResetModifiedKey clears a single entry from global-modified.
func (c *Context) ResetModifiedKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.globalModified, key)
}

// ResetLocalModified clears the local-modified set (used after a local
// checkpoint has captured it).
func (c *Context) ResetLocalModified() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localModified = make(map[string]struct{})
}

// WaitForChange blocks until the next change broadcast or until ctx is
// done, whichever comes first. Spurious wakeups are permitted by design
// (§4.1); callers re-check their predicate. The caller must not hold the
// lock when calling WaitForChange.
func (c *Context) WaitForChange(ctx context.Context) {
	c.mu.Lock()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	c.cond.Wait()
	close(done)
	c.mu.Unlock()
}

// RegisterFunction adds a native function to the registry under name.
func (c *Context) RegisterFunction(name string, fn Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[name] = fn
}

// LookupFunction retrieves a registered function.
func (c *Context) LookupFunction(name string) (Function, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.functions[name]
	return fn, ok
}

// CacheGet/CacheSet back the interpreter cache (§3: "KaRL source ->
// compiled ExprTree (shared, reference-counted)"). The karl package
// stores its *Expression values here under the source text as key; using
// `any` avoids an import cycle between knowledge and karl (karl depends
// on knowledge, not the reverse).
func (c *Context) CacheGet(source string) (any, bool) {
	return c.cache.Get(source)
}

func (c *Context) CacheSet(source string, v any) {
	c.cache.Add(source, v)
}

func (c *Context) CacheRemove(source string) {
	c.cache.Remove(source)
}

func (c *Context) CacheFlush() {
	c.cache.Purge()
}

// Logger exposes the Context's logging collaborator to packages that
// evaluate against it (karl's Waiter logs pre/post print statements
// through this).
func (c *Context) Logger() Logger { return c.logger }
