// Package trace implements the append-only, hash-chained JSONL audit trail
// of an apply run.
package trace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// SigningKeyEnv names the environment variable holding the HMAC key used to
// sign the chain hash on apply_complete.
const SigningKeyEnv = "LOADOUT_TRACE_SIGNING_KEY"

// EventType enumerates all trace event types.
type EventType string

const (
	EventApplyStart        EventType = "apply_start"
	EventApplyComplete     EventType = "apply_complete"
	EventPlanResolved      EventType = "plan_resolved"
	EventDirectiveStart    EventType = "directive_start"
	EventDirectiveComplete EventType = "directive_complete"
	EventExpansion         EventType = "expansion"
	EventVersionChecked    EventType = "version_checked"
)

// DirectiveStatus is the execution status of one directive.
type DirectiveStatus string

const (
	StatusSuccess DirectiveStatus = "success"
	StatusFailed  DirectiveStatus = "failed"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	PrevHash  string         `json:"prev_hash"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a directive failed.
type Failure struct {
	Kind    string `json:"kind"` // unknown_bundle, malformed, version_mismatch, activation, deactivation
	Message string `json:"message"`
}

var genesisHash = strings.Repeat("0", 64)

// Writer writes trace events to an append-only JSONL stream. Each event
// carries the SHA-256 of the previous line.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	runID    string
	prevHash string
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:        w,
		runID:    runID,
		prevHash: genesisHash,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// Close closes the underlying stream when it is closable.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.emitLocked(eventType, data)
}

func (tw *Writer) emitLocked(eventType EventType, data map[string]any) error {
	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		PrevHash:  tw.prevHash,
		Data:      data,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal trace event: %w", err)
	}
	h := sha256.Sum256(line)
	tw.prevHash = hex.EncodeToString(h[:])
	if _, err := tw.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	return nil
}

// EmitApplyStart emits an apply_start event.
func (tw *Writer) EmitApplyStart(layer, consumer string, bundles []string, exclusions map[string][]string) error {
	data := map[string]any{
		"layer":    layer,
		"consumer": consumer,
		"bundles":  bundles,
	}
	if len(exclusions) > 0 {
		data["exclusions"] = exclusions
	}
	return tw.Emit(EventApplyStart, data)
}

// EmitPlanResolved emits the ordered, statically filtered plan.
func (tw *Writer) EmitPlanResolved(steps []string) error {
	return tw.Emit(EventPlanResolved, map[string]any{
		"steps": steps,
		"count": len(steps),
	})
}

// EmitDirectiveStart emits a directive_start event.
func (tw *Writer) EmitDirectiveStart(index int, directive string, depth int) error {
	data := map[string]any{
		"index":     index,
		"directive": directive,
	}
	if depth > 0 {
		data["depth"] = depth
	}
	return tw.Emit(EventDirectiveStart, data)
}

// EmitDirectiveComplete emits a directive_complete event.
func (tw *Writer) EmitDirectiveComplete(index int, directive string, status DirectiveStatus, duration time.Duration, failure *Failure) error {
	data := map[string]any{
		"index":     index,
		"directive": directive,
		"status":    string(status),
		"duration":  duration.String(),
	}
	if failure != nil {
		data["failure"] = map[string]any{
			"kind":    failure.Kind,
			"message": failure.Message,
		}
	}
	return tw.Emit(EventDirectiveComplete, data)
}

// EmitExpansion records what a generator produced after filtering.
func (tw *Writer) EmitExpansion(depth int, produced, kept []string) error {
	return tw.Emit(EventExpansion, map[string]any{
		"depth":    depth,
		"produced": len(produced),
		"kept":     kept,
	})
}

// EmitVersionChecked records a version gate evaluation.
func (tw *Writer) EmitVersionChecked(target, required, actual string, ok bool) error {
	return tw.Emit(EventVersionChecked, map[string]any{
		"target":   target,
		"required": required,
		"actual":   actual,
		"ok":       ok,
	})
}

// EmitApplyComplete emits apply_complete with the chain hash, signed when
// a signing key is configured.
func (tw *Writer) EmitApplyComplete(status string, executed int, duration time.Duration, failure *Failure) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data := map[string]any{
		"status":     status,
		"executed":   executed,
		"duration":   duration.String(),
		"chain_hash": tw.prevHash,
	}
	if failure != nil {
		data["failure"] = map[string]any{
			"kind":    failure.Kind,
			"message": failure.Message,
		}
	}
	if key := os.Getenv(SigningKeyEnv); key != "" {
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write([]byte(tw.prevHash))
		data["signature"] = hex.EncodeToString(mac.Sum(nil))
		data["signing_key_id"] = SigningKeyEnv
	}
	return tw.emitLocked(EventApplyComplete, data)
}
