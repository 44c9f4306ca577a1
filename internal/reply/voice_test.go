package reply

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPresets(t *testing.T) {
	if diff := cmp.Diff([]string{"outbound", "thread"}, PresetNames()); diff != "" {
		t.Errorf("PresetNames mismatch (-want +got):\n%s", diff)
	}
	for _, name := range PresetNames() {
		v, err := Preset(name)
		if err != nil {
			t.Errorf("Preset(%q): %v", name, err)
			continue
		}
		if v.Name != name {
			t.Errorf("Preset(%q).Name = %q", name, v.Name)
		}
		if len(v.BannedPhrases) == 0 || len(v.SkipWhen) == 0 {
			t.Errorf("Preset(%q) lacks banned phrases or skip conditions", name)
		}
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("pirate")
	if err == nil || !strings.Contains(err.Error(), "thread") {
		t.Errorf("Preset(pirate) error = %v, want one listing available presets", err)
	}
}

func TestLoadVoice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	content := `name: custom
persona: You are @{handle}, a terse engineer.
tone:
  - Lowercase only
banned_phrases:
  - synergy
skip_when:
  - Recruiter spam
min_words: 2
max_words: 12
examples:
  - ship it
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadVoice(path)
	if err != nil {
		t.Fatalf("LoadVoice: %v", err)
	}
	want := VoiceSpec{
		Name:          "custom",
		Persona:       "You are @{handle}, a terse engineer.",
		Tone:          []string{"Lowercase only"},
		BannedPhrases: []string{"synergy"},
		SkipWhen:      []string{"Recruiter spam"},
		MinWords:      2,
		MaxWords:      12,
		Examples:      []string{"ship it"},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("LoadVoice mismatch (-want +got):\n%s", diff)
	}

	r := v.Render("gopher")
	for _, s := range []string{"You are @gopher, a terse engineer.", `"synergy"`, "- Recruiter spam", "Aim for 2-12 words", `- "ship it"`} {
		if !strings.Contains(r, s) {
			t.Errorf("Render missing %q\n---\n%s", s, r)
		}
	}
}

func TestLoadVoice_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no-persona.yaml": "tone: [x]\n",
		"bad-bounds.yaml": "persona: p\nmin_words: 10\nmax_words: 5\n",
		"not-yaml.yaml":   "persona: [unterminated\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadVoice(path); err == nil {
			t.Errorf("LoadVoice(%s): want error", name)
		}
	}

	if _, err := LoadVoice(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadVoice(missing): want error")
	}
}
