package reply

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// VoiceSpec describes tone, length bounds, banned phrases and skip
// conditions. It is loaded once per run and passed unmodified to every
// generation call.
type VoiceSpec struct {
	Name          string   `yaml:"name"`
	Persona       string   `yaml:"persona"`
	Situation     string   `yaml:"situation,omitempty"`
	Tone          []string `yaml:"tone"`
	ReplyStyle    []string `yaml:"reply_style,omitempty"`
	BannedPhrases []string `yaml:"banned_phrases,omitempty"`
	SkipWhen      []string `yaml:"skip_when,omitempty"`
	MinWords      int      `yaml:"min_words,omitempty"`
	MaxWords      int      `yaml:"max_words,omitempty"`
	MaxChars      int      `yaml:"max_chars,omitempty"`
	Examples      []string `yaml:"examples,omitempty"`
	Goal          string   `yaml:"goal,omitempty"`
	Instruction   string   `yaml:"instruction,omitempty"`
}

// Preset returns one of the built-in voice specs by name.
func Preset(name string) (VoiceSpec, error) {
	b, err := fs.ReadFile(presetFS, "presets/"+name+".yaml")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return VoiceSpec{}, fmt.Errorf("unknown voice preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
		}
		return VoiceSpec{}, err
	}
	return parseVoice(b)
}

// PresetNames lists the built-in voice specs.
func PresetNames() []string {
	entries, err := fs.ReadDir(presetFS, "presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadVoice reads a voice spec from a YAML file.
func LoadVoice(path string) (VoiceSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return VoiceSpec{}, fmt.Errorf("reading voice file: %w", err)
	}
	v, err := parseVoice(b)
	if err != nil {
		return VoiceSpec{}, fmt.Errorf("voice file %s: %w", path, err)
	}
	return v, nil
}

func parseVoice(b []byte) (VoiceSpec, error) {
	var v VoiceSpec
	if err := yaml.Unmarshal(b, &v); err != nil {
		return VoiceSpec{}, fmt.Errorf("parsing voice spec: %w", err)
	}
	if err := v.validate(); err != nil {
		return VoiceSpec{}, err
	}
	return v, nil
}

func (v VoiceSpec) validate() error {
	if strings.TrimSpace(v.Persona) == "" {
		return errors.New("voice spec: persona is required")
	}
	if v.MinWords < 0 || v.MaxWords < 0 || v.MaxChars < 0 {
		return errors.New("voice spec: length bounds must not be negative")
	}
	if v.MaxWords > 0 && v.MinWords > v.MaxWords {
		return fmt.Errorf("voice spec: min_words %d exceeds max_words %d", v.MinWords, v.MaxWords)
	}
	return nil
}

// Render produces the instruction block that opens every prompt. The
// persona may reference the account as {handle}.
func (v VoiceSpec) Render(handle string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(strings.ReplaceAll(v.Persona, "{handle}", handle)))

	if v.Situation != "" {
		fmt.Fprintf(&sb, "\n\n%s", strings.TrimSpace(v.Situation))
	}
	if len(v.Examples) > 0 {
		sb.WriteString("\n\nYour real reply voice (match this energy):")
		for _, e := range v.Examples {
			fmt.Fprintf(&sb, "\n- %q", e)
		}
	}
	writeSection(&sb, "VOICE", v.Tone)
	writeSection(&sb, "REPLY STYLE", v.ReplyStyle)
	if len(v.BannedPhrases) > 0 {
		quoted := make([]string, len(v.BannedPhrases))
		for i, p := range v.BannedPhrases {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		fmt.Fprintf(&sb, "\n\nBANNED PHRASES (never use these):\n%s", strings.Join(quoted, ", "))
	}

	var length []string
	switch {
	case v.MinWords > 0 && v.MaxWords > 0:
		length = append(length, fmt.Sprintf("Aim for %d-%d words", v.MinWords, v.MaxWords))
	case v.MaxWords > 0:
		length = append(length, fmt.Sprintf("At most %d words", v.MaxWords))
	}
	if v.MaxChars > 0 {
		length = append(length, fmt.Sprintf("Under %d characters", v.MaxChars))
	}
	writeSection(&sb, "LENGTH", length)

	writeSection(&sb, "WHEN TO SKIP (return exactly: "+Sentinel+")", v.SkipWhen)

	if v.Goal != "" {
		fmt.Fprintf(&sb, "\n\n%s", strings.TrimSpace(v.Goal))
	}
	fmt.Fprintf(&sb, "\n\nIf you can't add value, return exactly: %s", Sentinel)
	return sb.String()
}

// CallToAction is the closing line of the prompt.
func (v VoiceSpec) CallToAction() string {
	if v.Instruction != "" {
		return v.Instruction
	}
	switch {
	case v.MaxChars > 0:
		return fmt.Sprintf("Generate your reply (under %d chars). If not worth replying, say %s.", v.MaxChars, Sentinel)
	case v.MaxWords > 0:
		return fmt.Sprintf("Generate your reply (%d-%d words). If not worth replying, say %s.", max(v.MinWords, 1), v.MaxWords, Sentinel)
	default:
		return "Generate your reply. If not worth replying, say " + Sentinel + "."
	}
}

func writeSection(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n\n%s:", title)
	for _, l := range lines {
		fmt.Fprintf(sb, "\n- %s", l)
	}
}
