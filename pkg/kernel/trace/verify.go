package trace

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult is the outcome of verifying one apply trace.
type VerifyResult struct {
	EventCount int
	Valid      bool
	BrokenAt   int // 1-based event index, -1 if intact
	Error      string

	// Apply summary, taken from apply_start and apply_complete.
	RunID       string
	Layer       string
	Consumer    string
	Complete    bool // apply_complete was reached
	Status      string
	Executed    int
	FailureKind string

	ChainHash      string
	SignatureOK    bool
	SignatureNoKey bool // signature present but no key to verify
	SigningKeyID   string
}

// VerifyFile verifies the trace file at path.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify checks the hash chain of one apply trace, that every event belongs
// to the same run, and that apply_complete agrees with the directives that
// succeeded. The signature on apply_complete is checked when
// LOADOUT_TRACE_SIGNING_KEY is set.
func Verify(r io.Reader) (*VerifyResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	res := &VerifyResult{Valid: true, BrokenAt: -1}
	prev := genesisHash
	succeeded := 0
	var last Event

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		res.EventCount++
		n := res.EventCount

		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return res.broken("event %d: invalid JSON: %v", n, err), nil
		}
		if evt.PrevHash != prev {
			return res.broken("event %d: prev_hash mismatch (expected %s, got %s)", n, short(prev), short(evt.PrevHash)), nil
		}
		if res.Complete {
			return res.broken("event %d: %s after apply_complete", n, evt.Type), nil
		}
		switch {
		case n == 1:
			res.RunID = evt.RunID
		case evt.RunID != res.RunID:
			return res.broken("event %d: run_id %q, trace started as %q", n, evt.RunID, res.RunID), nil
		}

		switch evt.Type {
		case EventApplyStart:
			res.Layer, _ = evt.Data["layer"].(string)
			res.Consumer, _ = evt.Data["consumer"].(string)
		case EventDirectiveComplete:
			if s, _ := evt.Data["status"].(string); s == string(StatusSuccess) {
				succeeded++
			}
		case EventApplyComplete:
			res.Complete = true
			res.Status, _ = evt.Data["status"].(string)
			if x, ok := evt.Data["executed"].(float64); ok {
				res.Executed = int(x)
			}
			if f, ok := evt.Data["failure"].(map[string]any); ok {
				res.FailureKind, _ = f["kind"].(string)
			}
			if res.Executed != succeeded {
				return res.broken("event %d: apply_complete reports %d executed, trace shows %d", n, res.Executed, succeeded), nil
			}
		}

		h := sha256.Sum256(line)
		prev = hex.EncodeToString(h[:])
		last = evt
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	if res.Complete {
		res.checkSignature(last)
	}
	return res, nil
}

func (res *VerifyResult) broken(format string, args ...any) *VerifyResult {
	res.Valid = false
	res.BrokenAt = res.EventCount
	res.Error = fmt.Sprintf(format, args...)
	return res
}

func (res *VerifyResult) checkSignature(complete Event) {
	res.ChainHash, _ = complete.Data["chain_hash"].(string)
	sig, ok := complete.Data["signature"].(string)
	if !ok {
		return
	}
	res.SigningKeyID, _ = complete.Data["signing_key_id"].(string)

	key := os.Getenv(SigningKeyEnv)
	if key == "" {
		res.SignatureNoKey = true
		return
	}
	if res.ChainHash == "" {
		return
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(res.ChainHash))
	res.SignatureOK = hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil))))
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return h
}
