package tenant

import (
	"gopkg.in/yaml.v3"
)

// listMergeKeys name the sequences that concatenate (de-duplicated, first
// seen wins) instead of being replaced by the override.
var listMergeKeys = map[string]bool{
	"scopes":           true,
	"allowed_channels": true,
	"keywords":         true,
}

// MergeNodes deep-merges override onto base and returns a new tree; neither
// input is modified. Mappings merge key-wise with base key order preserved
// and new keys appended, list-merge keys concatenate, everything else is
// replaced by the override.
func MergeNodes(base, override *yaml.Node) *yaml.Node {
	switch {
	case base == nil:
		return cloneNode(override)
	case override == nil:
		return cloneNode(base)
	case base.Kind != yaml.MappingNode || override.Kind != yaml.MappingNode:
		return cloneNode(override)
	}

	out := cloneNode(base)
	index := make(map[string]int, len(out.Content)/2)
	for i := 0; i+1 < len(out.Content); i += 2 {
		index[out.Content[i].Value] = i + 1
	}

	for i := 0; i+1 < len(override.Content); i += 2 {
		key, value := override.Content[i], override.Content[i+1]
		pos, ok := index[key.Value]
		if !ok {
			out.Content = append(out.Content, cloneNode(key), cloneNode(value))
			index[key.Value] = len(out.Content) - 1
			continue
		}
		existing := out.Content[pos]
		switch {
		case existing.Kind == yaml.MappingNode && value.Kind == yaml.MappingNode:
			out.Content[pos] = MergeNodes(existing, value)
		case listMergeKeys[key.Value] && existing.Kind == yaml.SequenceNode && value.Kind == yaml.SequenceNode:
			out.Content[pos] = concatUnique(existing, value)
		default:
			out.Content[pos] = cloneNode(value)
		}
	}
	return out
}

func concatUnique(a, b *yaml.Node) *yaml.Node {
	out := &yaml.Node{Kind: yaml.SequenceNode, Tag: a.Tag, Style: a.Style}
	seen := make(map[string]bool)
	for _, n := range append(append([]*yaml.Node{}, a.Content...), b.Content...) {
		k := nodeKey(n)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Content = append(out.Content, cloneNode(n))
	}
	return out
}

func nodeKey(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		return n.Tag + "\x00" + n.Value
	}
	b, err := yaml.Marshal(n)
	if err != nil {
		return n.Tag + "\x00" + n.Value
	}
	return string(b)
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Content = nil
	for _, child := range n.Content {
		c.Content = append(c.Content, cloneNode(child))
	}
	return &c
}
