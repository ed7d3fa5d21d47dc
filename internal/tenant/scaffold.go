package tenant

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scaffold creates the directory of a new tenant with an identity file and
// empty overlays. Existing files are left untouched; the paths actually
// written are returned.
func Scaffold(tenantsRoot, tenantID, businessName, language, timezone string) ([]string, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}

	root := filepath.Join(tenantsRoot, tenantID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating tenant directory: %w", err)
	}

	files := []struct {
		name    string
		payload interface{}
	}{
		{IdentityFile, Tenant{
			ID:             tenantID,
			BusinessName:   businessName,
			Language:       language,
			Timezone:       timezone,
			ActiveChannels: []string{DefaultChannel},
		}},
		{IntentsFile, map[string]interface{}{"intents": map[string]interface{}{}}},
		{ToolsFile, map[string]interface{}{"tools": map[string]interface{}{}}},
		{ChannelsFile, map[string]interface{}{"channels": map[string]interface{}{DefaultChannel: map[string]interface{}{"enabled": true}}}},
		{PromptTemplateFile, map[string]interface{}{"style": map[string]interface{}{"language": language, "tone": "freundlich"}}},
		{KnowledgeFile, map[string]interface{}{"entries": []interface{}{}}},
	}

	var written []string
	for _, f := range files {
		target := filepath.Join(root, f.name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := yaml.Marshal(f.payload)
		if err != nil {
			return written, fmt.Errorf("encoding %s: %w", f.name, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", f.name, err)
		}
		written = append(written, target)
	}
	return written, nil
}
