package classifier

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/nexus/patterns"
)

// RecognizerFile is the top-level YAML structure of a recognizer file.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig describes one PII recognizer. Matches are replaced by
// "[<Placeholder>_<n>]".
type RecognizerConfig struct {
	Name        string `yaml:"name" json:"name"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Regex       string `yaml:"regex" json:"regex"`
	Enabled     *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type recognizer struct {
	name        string
	placeholder string
	re          *regexp.Regexp
}

// ParseRecognizerFile parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads a recognizer file. A missing file yields nil and
// no error.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the embedded email and phone recognizers.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIYAML())
	if err != nil {
		return nil, err
	}
	return rf.Recognizers, nil
}

// MergeRecognizers overlays later layers on earlier ones by Name. Overrides
// keep the position of the recognizer they replace; new names are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	var out []RecognizerConfig
	index := map[string]int{}
	for _, layer := range layers {
		for _, r := range layer {
			if i, ok := index[r.Name]; ok {
				out[i] = r
				continue
			}
			index[r.Name] = len(out)
			out = append(out, r)
		}
	}
	return out
}

func compile(configs []RecognizerConfig) ([]recognizer, error) {
	var out []recognizer
	for i := range configs {
		c := &configs[i]
		if !c.isEnabled() {
			continue
		}
		if c.Placeholder == "" {
			return nil, fmt.Errorf("recognizer %q: placeholder is required", c.Name)
		}
		re, err := regexp.Compile(c.Regex)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", c.Name, err)
		}
		out = append(out, recognizer{name: c.Name, placeholder: c.Placeholder, re: re})
	}
	return out, nil
}
