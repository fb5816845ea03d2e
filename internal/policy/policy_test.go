package policy

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultEncodesDecisionRules(t *testing.T) {
	p := Default()
	if strings.TrimSpace(p) == "" {
		t.Fatal("default policy must not be empty")
	}

	required := []string{
		"Disrespectful, mocking, or insulting toward the deceased",
		"Hate speech, slurs, or discriminatory language",
		"f@ggot",
		"Sexual or explicitly inappropriate content",
		"Violent threats",
		"Spam, promotional content, or clearly off-topic material",
		"deserved death, were punished by a higher power",
		"Fuck cancer",
		"Heaven gained an angel",
		"When in doubt, allow the content",
		"minimal exact substring",
	}
	for _, want := range required {
		if !strings.Contains(p, want) {
			t.Errorf("default policy missing %q", want)
		}
	}
}

func TestDefaultIsDeterministic(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default must return the same text on every call")
	}
	if Hash(Default()) != Hash(Default()) {
		t.Fatal("hash must be stable")
	}
	if !strings.HasPrefix(Hash(Default()), "sha256:") {
		t.Errorf("unexpected hash format %q", Hash(Default()))
	}
}

func TestResolve(t *testing.T) {
	custom := "Flag everything about pineapples."
	blank := "   \n"

	tests := []struct {
		name     string
		override *string
		want     string
	}{
		{"absent", nil, Default()},
		{"blank", &blank, Default()},
		{"custom", &custom, custom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.override); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHandleResetRestoresDefault(t *testing.T) {
	h := NewHandle()
	if h.Edited() {
		t.Fatal("new handle should hold the default")
	}

	h.Set("custom")
	if !h.Edited() {
		t.Fatal("expected edited handle")
	}
	if Default() == "custom" {
		t.Fatal("editing a handle must not touch the default")
	}

	got := Reset(h)
	if got != Default() {
		t.Error("Reset should return the default")
	}
	if h.Get() != Default() || h.Edited() {
		t.Error("Reset should overwrite the handle with the default")
	}
}

func TestHandleConcurrentAccess(t *testing.T) {
	h := NewHandle()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Set("edit")
		}()
		go func() {
			defer wg.Done()
			Reset(h)
		}()
	}
	wg.Wait()

	got := h.Get()
	if got != "edit" && got != Default() {
		t.Errorf("unexpected handle content %q", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	p, hash, err := LoadFile("/nonexistent/path/policy.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if p != Default() {
		t.Error("expected default policy for missing file")
	}
	if hash != Hash(Default()) {
		t.Errorf("expected default hash, got %s", hash)
	}
}

func TestLoadFileCustom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "name: strict\ninstructions: |\n  Flag all profanity.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, hash, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p != "Flag all profanity.\n" {
		t.Errorf("unexpected instructions %q", p)
	}
	if hash != Hash(p) {
		t.Error("hash should cover the loaded instructions")
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"invalid.yaml": "instructions: [unterminated",
		"blank.yaml":   "name: empty\ninstructions: \"  \"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, _, err := LoadFile(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaultFileYAMLRoundTrips(t *testing.T) {
	out, err := DefaultFileYAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "# tributeguard moderation policy") {
		t.Error("expected comment header")
	}

	var f File
	if err := yaml.Unmarshal([]byte(out), &f); err != nil {
		t.Fatalf("generated file is not valid YAML: %v", err)
	}
	if f.Instructions != Default() {
		t.Error("generated file should hold the default instructions verbatim")
	}
}
