package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

const editorDoc = "../../testdata/editor.yaml"

// execute runs the root command with every flag back at its default.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags undoes values left by a previous Execute. Array flags append
// once set, so they are emptied rather than reset to their default text.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"strict=true", "level=3", "name=core", "empty="})
	if err != nil {
		t.Fatal(err)
	}
	if got["strict"] != true {
		t.Errorf("strict = %#v, want bool true", got["strict"])
	}
	if got["level"] != 3 {
		t.Errorf("level = %#v, want int 3", got["level"])
	}
	if got["name"] != "core" {
		t.Errorf("name = %#v", got["name"])
	}
	if got["empty"] != "" {
		t.Errorf("empty = %#v, want empty string", got["empty"])
	}

	if _, err := parseArgs([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseArgs([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestLoadConfig_EnvAndDefaults(t *testing.T) {
	t.Setenv("LOADOUT_LOG_LEVEL", "debug")
	t.Setenv("LOADOUT_MAX_DEPTH", "8")
	t.Chdir(t.TempDir())

	c, err := loadConfig(&cobra.Command{})
	if err != nil {
		t.Fatal(err)
	}
	if c.LogLevel != "debug" {
		t.Errorf("log level = %q", c.LogLevel)
	}
	if c.MaxDepth != 8 {
		t.Errorf("max depth = %d", c.MaxDepth)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".loadout.yaml"), []byte("layer: base\ntrace: out.jsonl\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := loadConfig(&cobra.Command{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Layer != "base" || c.Trace != "out.jsonl" {
		t.Errorf("config = %+v", c)
	}
	if c.LogLevel != "warn" {
		t.Errorf("default log level = %q", c.LogLevel)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", editorDoc)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "editor is valid (2 layers, 2 bundles, 6 scenarios)") {
		t.Errorf("output = %q", out)
	}
}

func TestPlanCommand_JSON(t *testing.T) {
	out, err := execute(t, "plan", editorDoc, "--layer", "base", "--bundle", "Foo", "--exclude", "B=y", "--json")
	if err != nil {
		t.Fatalf("plan: %v\n%s", err, out)
	}
	var got struct {
		Layer string `json:"layer"`
		Steps []struct {
			Directive string `json:"directive"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []string{"enable E", "enable A", "enable B(x)", "disable C(z)", "enable D>=1.5", "enable F"}
	if len(got.Steps) != len(want) {
		t.Fatalf("steps = %+v", got.Steps)
	}
	for i, s := range got.Steps {
		if s.Directive != want[i] {
			t.Errorf("step %d = %q, want %q", i, s.Directive, want[i])
		}
	}
}

func TestApplyCommand_TraceVerifies(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "apply.jsonl")
	out, err := execute(t, "apply", editorDoc, "--layer", "app", "--bundle", "Lint", "--arg", "strict=true", "--trace", tracePath, "--json")
	if err != nil {
		t.Fatalf("apply: %v\n%s", err, out)
	}
	var report applyReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Status != "completed" {
		t.Errorf("status = %q (%s)", report.Status, report.Error)
	}
	if n := len(report.Executed); n != 7 {
		t.Errorf("executed %d directives: %v", n, report.Executed)
	}

	out, err = execute(t, "trace", "verify", tracePath)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Chain integrity") || !strings.Contains(out, `completed, 7 directives on layer "app"`) {
		t.Errorf("verify output = %q", out)
	}
}

func TestApplyCommand_Record(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recorded.yaml")
	out, err := execute(t, "apply", editorDoc, "--layer", "base", "--bundle", "Foo", "--exclude", "B=y",
		"--trace", filepath.Join(dir, "t.jsonl"), "--record", recPath, "--json")
	if err != nil {
		t.Fatalf("apply: %v\n%s", err, out)
	}
	data, err := os.ReadFile(recPath)
	if err != nil {
		t.Fatal(err)
	}
	var scs []schema.Scenario
	if err := yaml.Unmarshal(data, &scs); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if len(scs) != 1 {
		t.Fatalf("scenarios = %d", len(scs))
	}
	sc := scs[0]
	if !strings.HasPrefix(sc.Name, "recorded-") || sc.Layer != "base" {
		t.Errorf("scenario = %+v", sc)
	}
	if len(sc.Expect.Executed) != 6 || sc.Expect.Executed[0] != "enable E" {
		t.Errorf("executed = %v", sc.Expect.Executed)
	}
	if sc.Units["D"].Version != "2.0.0" || !sc.Units["C"].Deactivate {
		t.Errorf("units = %+v", sc.Units)
	}
	if len(sc.Exclude) != 1 || sc.Exclude[0] != "B=y" {
		t.Errorf("exclude = %v", sc.Exclude)
	}
}

func TestTestCommand(t *testing.T) {
	out, err := execute(t, "test", editorDoc, "--layer", "")
	if err != nil {
		t.Fatalf("test: %v\n%s", err, out)
	}
	if !strings.Contains(out, "6 passed, 0 failed, 0 errors (total: 6)") {
		t.Errorf("output = %q", out)
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "loadout-v0.json") {
		t.Errorf("schema output missing $id")
	}
}
