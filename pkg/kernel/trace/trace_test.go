package trace

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	if err := tw.EmitDirectiveStart(0, "enable B(x)", 0); err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventDirectiveStart {
		t.Errorf("type = %q, want directive_start", evt.Type)
	}
	if evt.RunID != "run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.PrevHash != genesisHash {
		t.Errorf("first event must chain from genesis, got %s", evt.PrevHash)
	}
	if evt.Data["directive"] != "enable B(x)" {
		t.Errorf("data = %v", evt.Data)
	}
	if _, ok := evt.Data["depth"]; ok {
		t.Error("depth 0 is omitted")
	}
	if time.Since(evt.Timestamp) > time.Minute {
		t.Errorf("timestamp = %v", evt.Timestamp)
	}
}

func writeRun(t *testing.T, w *bytes.Buffer) {
	t.Helper()
	tw := NewWriter(w, "run-2")
	tw.EmitApplyStart("app", "editor", []string{"Foo"}, map[string][]string{"B": {"y"}})
	tw.EmitPlanResolved([]string{"enable E", "enable A"})
	tw.EmitDirectiveStart(0, "enable E", 0)
	tw.EmitDirectiveComplete(0, "enable E", StatusSuccess, time.Millisecond, nil)
	tw.EmitExpansion(1, []string{"enable X", "enable Y"}, []string{"enable Y"})
	tw.EmitVersionChecked("D", "1.5", "1.0", false)
	tw.EmitDirectiveComplete(1, "enable D>=1.5", StatusFailed, time.Millisecond,
		&Failure{Kind: "version_mismatch", Message: "D version 1.5 required, have 1.0"})
	if err := tw.EmitApplyComplete("failed", 1, 5*time.Millisecond,
		&Failure{Kind: "version_mismatch", Message: "D version 1.5 required, have 1.0"}); err != nil {
		t.Fatal(err)
	}
}

func TestVerify_Chain(t *testing.T) {
	t.Setenv(SigningKeyEnv, "")
	var buf bytes.Buffer
	writeRun(t, &buf)

	res, err := Verify(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.BrokenAt != -1 {
		t.Fatalf("result = %+v", res)
	}
	if res.EventCount != 8 {
		t.Errorf("events = %d, want 8", res.EventCount)
	}
	if len(res.ChainHash) != 64 {
		t.Errorf("chain hash = %q", res.ChainHash)
	}
	if res.SignatureOK || res.SignatureNoKey {
		t.Error("unsigned trace reports no signature state")
	}
}

func TestVerify_Summary(t *testing.T) {
	t.Setenv(SigningKeyEnv, "")
	var buf bytes.Buffer
	writeRun(t, &buf)

	res, err := Verify(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	want := VerifyResult{
		RunID: "run-2", Layer: "app", Consumer: "editor",
		Complete: true, Status: "failed", Executed: 1, FailureKind: "version_mismatch",
	}
	got := VerifyResult{
		RunID: res.RunID, Layer: res.Layer, Consumer: res.Consumer,
		Complete: res.Complete, Status: res.Status, Executed: res.Executed, FailureKind: res.FailureKind,
	}
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}

func TestVerify_Incomplete(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "cut")
	tw.EmitApplyStart("app", "editor", nil, nil)
	tw.EmitDirectiveStart(0, "enable A", 0)

	res, err := Verify(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Complete || res.Status != "" || res.ChainHash != "" {
		t.Errorf("an interrupted apply keeps a valid chain but no outcome: %+v", res)
	}
}

func TestVerify_Inconsistent(t *testing.T) {
	tests := []struct {
		name   string
		write  func(tw *Writer)
		at     int
		errMsg string
	}{
		{
			name: "executed count",
			write: func(tw *Writer) {
				tw.EmitApplyStart("app", "editor", nil, nil)
				tw.EmitDirectiveComplete(0, "enable A", StatusSuccess, 0, nil)
				tw.EmitApplyComplete("completed", 2, 0, nil)
			},
			at:     3,
			errMsg: "reports 2 executed, trace shows 1",
		},
		{
			name: "event after completion",
			write: func(tw *Writer) {
				tw.EmitApplyStart("app", "editor", nil, nil)
				tw.EmitApplyComplete("completed", 0, 0, nil)
				tw.EmitDirectiveStart(0, "enable A", 0)
			},
			at:     3,
			errMsg: "directive_start after apply_complete",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(SigningKeyEnv, "")
			var buf bytes.Buffer
			tt.write(NewWriter(&buf, "r"))
			res, err := Verify(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			if res.Valid || res.BrokenAt != tt.at || !strings.Contains(res.Error, tt.errMsg) {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestVerify_ForeignRun(t *testing.T) {
	var first, second bytes.Buffer
	a := NewWriter(&first, "run-a")
	a.EmitApplyStart("app", "editor", nil, nil)

	// Chain a second writer onto the first so only the run id differs.
	b := NewWriter(&second, "run-b")
	b.prevHash = a.prevHash
	b.EmitPlanResolved(nil)

	res, err := Verify(strings.NewReader(first.String() + second.String()))
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 2 || !strings.Contains(res.Error, `run_id "run-b"`) {
		t.Errorf("result = %+v", res)
	}
}

func TestVerify_Tampered(t *testing.T) {
	t.Setenv(SigningKeyEnv, "")
	var buf bytes.Buffer
	writeRun(t, &buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	lines[2] = strings.Replace(lines[2], "enable E", "enable Z", 1)
	res, err := Verify(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 4 {
		t.Errorf("tampering line 3 breaks the chain at event 4: %+v", res)
	}
}

func TestVerify_Truncated(t *testing.T) {
	t.Setenv(SigningKeyEnv, "")
	var buf bytes.Buffer
	writeRun(t, &buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	dropped := append(append([]string{}, lines[:3]...), lines[4:]...)
	res, _ := Verify(strings.NewReader(strings.Join(dropped, "\n")))
	if res.Valid {
		t.Error("a removed event must break the chain")
	}
}

func TestVerify_InvalidJSON(t *testing.T) {
	res, err := Verify(strings.NewReader("{not json}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || !strings.Contains(res.Error, "invalid JSON") {
		t.Errorf("result = %+v", res)
	}
}

func TestVerify_Signature(t *testing.T) {
	t.Setenv(SigningKeyEnv, "s3cret")
	var buf bytes.Buffer
	writeRun(t, &buf)

	res, err := Verify(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if !res.SignatureOK || res.SigningKeyID != SigningKeyEnv {
		t.Errorf("signature = %+v", res)
	}

	t.Setenv(SigningKeyEnv, "other")
	res, _ = Verify(bytes.NewReader(buf.Bytes()))
	if res.SignatureOK {
		t.Error("wrong key must not verify")
	}

	t.Setenv(SigningKeyEnv, "")
	res, _ = Verify(bytes.NewReader(buf.Bytes()))
	if !res.SignatureNoKey || !res.Valid {
		t.Errorf("missing key = %+v", res)
	}
}

func TestFileWriter(t *testing.T) {
	t.Setenv(SigningKeyEnv, "")
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tw, err := NewFileWriter(path, "file-run")
	if err != nil {
		t.Fatal(err)
	}
	tw.EmitApplyStart("base", "cli", nil, nil)
	tw.EmitApplyComplete("completed", 0, 0, nil)
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	res, err := VerifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 2 {
		t.Errorf("result = %+v", res)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "exclusions") {
		t.Error("empty exclusions are omitted")
	}
}

func TestVerifyFile_Missing(t *testing.T) {
	if _, err := VerifyFile(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected open error")
	}
}

func TestWriter_CloseNonCloser(t *testing.T) {
	if err := NewWriter(&bytes.Buffer{}, "x").Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
