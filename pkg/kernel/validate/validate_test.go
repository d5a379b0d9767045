package validate

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
)

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func filterErrors(errs []*ValidationError) []*ValidationError {
	var out []*ValidationError
	for _, e := range errs {
		if e.Severity == "error" {
			out = append(out, e)
		}
	}
	return out
}

func validateString(t *testing.T, src string) []*ValidationError {
	t.Helper()
	doc, err := schema.Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return ValidateDocument(doc)
}

func TestValidateFile_Valid(t *testing.T) {
	doc, errs := ValidateFile(testdataPath("valid.yaml"))
	for _, e := range errs {
		t.Errorf("unexpected: %s", e)
	}
	if doc == nil || doc.Meta.Name != "shell" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestValidateFile_Editor(t *testing.T) {
	_, errs := ValidateFile(testdataPath("../../../../testdata/editor.yaml"))
	if HasErrors(errs) {
		t.Errorf("editor.yaml: %v", errs)
	}
}

func TestValidateFile_MissingFields(t *testing.T) {
	_, errs := ValidateFile(testdataPath("missing_fields.yaml"))
	errors := filterErrors(errs)
	if len(errors) == 0 {
		t.Fatal("expected errors for missing fields")
	}
	var paths []string
	for _, e := range errors {
		if e.Phase != "semantic" {
			t.Errorf("phase = %s, domain checks must not run after semantic errors", e.Phase)
		}
		paths = append(paths, e.Path)
	}
	joined := strings.Join(paths, " ")
	for _, want := range []string{"meta.name", "layers[0].name"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error at %s; got %v", want, errors)
		}
	}
}

func TestValidateFile_UnknownField(t *testing.T) {
	doc, errs := ValidateFile(testdataPath("unknown_field.yaml"))
	if doc != nil {
		t.Error("structural failure returns no document")
	}
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Errorf("errs = %v", errs)
	}
}

func TestValidateFile_NotFound(t *testing.T) {
	_, errs := ValidateFile(testdataPath("nope.yaml"))
	if !HasErrors(errs) {
		t.Error("expected load error")
	}
}

const header = "apiVersion: loadout/v0\nmeta: {name: t}\n"

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		msg  string
	}{
		{
			name: "wrong api version",
			body: "layers: [{name: a}]\n",
			path: "apiVersion",
			msg:  "unrecognized apiVersion",
		},
		{
			name: "duplicate layer",
			body: "layers: [{name: a}, {name: a}]\n",
			path: "layers[1].name",
			msg:  "duplicate layer name",
		},
		{
			name: "unknown parent",
			body: "layers: [{name: a, parent: ghost}]\n",
			path: "layers[0].parent",
			msg:  "unknown parent layer",
		},
		{
			name: "parent cycle",
			body: "layers: [{name: a, parent: b}, {name: b, parent: a}]\n",
			path: "layers[0].parent",
			msg:  "forms a cycle",
		},
		{
			name: "malformed directive",
			body: "layers: [{name: a, directives: [\"<>\"]}]\n",
			path: "layers[0].directives",
			msg:  "malformed directive",
		},
		{
			name: "orphan args",
			body: "layers: [{name: a, directives: [[x]]}]\n",
			path: "layers[0].directives",
			msg:  "malformed directive",
		},
		{
			name: "bad version requirement",
			body: "layers: [{name: a, bundles: {K: [{A: banana}]}}]\n",
			path: "layers[0].bundles.K",
			msg:  "invalid version",
		},
		{
			name: "ordering marker in generator",
			body: "layers: [{name: a, directives: [{$generate: {directives: [\">A\"]}}]}]\n",
			path: "layers[0].directives[0].$generate.directives",
			msg:  "malformed directive",
		},
		{
			name: "args after generator",
			body: "layers: [{name: a, directives: [A, {$generate: {directives: [B]}}, [x]]}]\n",
			path: "layers[0].directives",
			msg:  "argument list without a preceding name",
		},
		{
			name: "marker before generator",
			body: "layers: [{name: a, bundles: {K: [\"<\", {$generate: {directives: [B]}}]}}]\n",
			path: "layers[0].bundles.K",
			msg:  "cannot apply to a generator",
		},
		{
			name: "generator with siblings",
			body: "layers: [{name: a, directives: [{$generate: {}, A: 1}]}]\n",
			path: "layers[0].directives[0].$generate",
			msg:  "must be the only key",
		},
		{
			name: "generator condition",
			body: "layers: [{name: a, directives: [{$generate: {when: 'consumer'}}]}]\n",
			path: "layers[0].directives[0].$generate.when",
			msg:  "compile condition",
		},
		{
			name: "default layer",
			body: "layers: [{name: a}]\n",
			path: "meta.default_layer",
			msg:  `unknown layer "b"`,
		},
		{
			name: "unit version",
			body: "layers: [{name: a}]\nunits: {U: {version: not-a-version}}\n",
			path: "units.U.version",
			msg:  "invalid version",
		},
		{
			name: "scenario name",
			body: "layers: [{name: a}]\nscenarios: [{name: '', expect: {}}]\n",
			path: "scenarios[0].name",
			msg:  "scenario name is required",
		},
		{
			name: "scenario layer",
			body: "layers: [{name: a}]\nscenarios: [{name: s, layer: z, expect: {}}]\n",
			path: "scenarios[0].layer",
			msg:  `unknown layer "z"`,
		},
		{
			name: "scenario failure kind",
			body: "layers: [{name: a}]\nscenarios: [{name: s, expect: {error: exploded}}]\n",
			path: "scenarios[0].expect.error",
			msg:  "unknown failure kind",
		},
		{
			name: "scenario bundle",
			body: "layers: [{name: a, bundles: {K: [A]}}]\nscenarios: [{name: s, bundles: [K, Q], expect: {}}]\n",
			path: "scenarios[0].bundles",
			msg:  `bundle "Q" is not defined`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := header + tt.body
			switch tt.name {
			case "wrong api version":
				src = strings.Replace(src, "loadout/v0", "loadout/v9", 1)
			case "default layer":
				src = "apiVersion: loadout/v0\nmeta: {name: t, default_layer: b}\n" + tt.body
			}
			errs := filterErrors(validateString(t, src))
			for _, e := range errs {
				if e.Path == tt.path && strings.Contains(e.Message, tt.msg) {
					return
				}
			}
			t.Errorf("want error at %s containing %q, got %v", tt.path, tt.msg, errs)
		})
	}
}

func TestValidateDomain_AllowsTemplatesAndExpectedUnknownBundle(t *testing.T) {
	errs := validateString(t, header+`
layers:
  - name: a
    directives:
      - $generate:
          directives: ["{{ .consumer }}", ["{{ .args.x }}"]]
scenarios:
  - name: missing on purpose
    bundles: [Nope]
    expect: {error: unknown_bundle}
`)
	if HasErrors(errs) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateDomain_ShadowedBundleWarns(t *testing.T) {
	errs := validateString(t, header+`
layers:
  - {name: root, bundles: {K: [A]}}
  - {name: leaf, parent: root, bundles: {K: [B]}}
`)
	if HasErrors(errs) {
		t.Fatalf("shadowing is not an error: %v", errs)
	}
	if len(errs) != 1 || errs[0].Severity != "warning" || errs[0].Path != "layers[1].bundles.K" {
		t.Errorf("errs = %v", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := errorf("domain", "layers[0]", "bad %s", "thing")
	if e.Error() != "[domain] bad thing at layers[0]" {
		t.Errorf("Error() = %q", e.Error())
	}
	w := warningf("semantic", "", "note")
	if w.Error() != "[semantic] note" || w.Severity != "warning" {
		t.Errorf("warning = %+v", w)
	}
}
