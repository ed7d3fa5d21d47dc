package tools

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/nexus/patterns"
)

var (
	ErrToolDisabled        = errors.New("tool not enabled for tenant")
	ErrInjection           = errors.New("prompt injection pattern in tool arguments")
	ErrShellMetacharacters = errors.New("shell metacharacters in tool arguments")
)

// InjectionRules is the parsed form of the injection pattern file.
type InjectionRules struct {
	Injection           []string `yaml:"injection"`
	ShellKeys           []string `yaml:"shell_keys"`
	ShellMetacharacters string   `yaml:"shell_metacharacters"`
}

// Firewall screens tool calls before they reach the guardian's command rules.
type Firewall struct {
	injection []*regexp.Regexp
	shellKeys map[string]bool
	shellMeta *regexp.Regexp
}

// NewFirewall compiles rules. Injection patterns match case-insensitively.
func NewFirewall(rules InjectionRules) (*Firewall, error) {
	fw := &Firewall{shellKeys: make(map[string]bool, len(rules.ShellKeys))}
	for _, p := range rules.Injection {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling injection pattern %q: %w", p, err)
		}
		fw.injection = append(fw.injection, re)
	}
	for _, k := range rules.ShellKeys {
		fw.shellKeys[strings.ToLower(k)] = true
	}
	if rules.ShellMetacharacters != "" {
		re, err := regexp.Compile(rules.ShellMetacharacters)
		if err != nil {
			return nil, fmt.Errorf("compiling shell metacharacter pattern: %w", err)
		}
		fw.shellMeta = re
	}
	return fw, nil
}

// DefaultFirewall is compiled at init time from the embedded patterns.
var DefaultFirewall *Firewall

func init() {
	var rules InjectionRules
	if err := yaml.Unmarshal(patterns.InjectionYAML(), &rules); err != nil {
		panic(fmt.Sprintf("parsing embedded injection patterns: %v", err))
	}
	fw, err := NewFirewall(rules)
	if err != nil {
		panic(fmt.Sprintf("compiling embedded injection patterns: %v", err))
	}
	DefaultFirewall = fw
}

// ValidateCall rejects calls to tools the tenant has not enabled and calls
// whose argument keys or string values look like prompt injection. Shell
// metacharacters are only rejected on shell-like keys.
func (fw *Firewall) ValidateCall(reg *Registry, tool string, args map[string]interface{}) error {
	if !reg.IsEnabled(tool) {
		return fmt.Errorf("%w: %s", ErrToolDisabled, tool)
	}
	for key, value := range args {
		if fw.injected(key) {
			return fmt.Errorf("%w: key %q", ErrInjection, key)
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if fw.injected(s) {
			return fmt.Errorf("%w: value of %q", ErrInjection, key)
		}
		if fw.shellMeta != nil && fw.shellKeys[strings.ToLower(key)] && fw.shellMeta.MatchString(s) {
			return fmt.Errorf("%w: value of %q", ErrShellMetacharacters, key)
		}
	}
	return nil
}

func (fw *Firewall) injected(s string) bool {
	for _, re := range fw.injection {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
