package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config file formats accepted by `vulntune config init`.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// RenderDefaults renders a config file holding every option's default.
// Options without a default are written as empty strings so the file shows
// where to set them.
func RenderDefaults(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatYAML, "yml", "":
		return renderYAML()
	case FormatTOML:
		return renderTOML()
	default:
		return nil, fmt.Errorf("unsupported config format %q (use %s or %s)", format, FormatYAML, FormatTOML)
	}
}

func defaultValue(opt Option) any {
	if opt.HasDefault() {
		return opt.Default
	}
	return ""
}

// renderYAML builds the document as a node tree so each key carries its
// description as a head comment.
func renderYAML() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	sections := make(map[string]*yaml.Node)

	for _, opt := range options {
		section, leaf, _ := strings.Cut(opt.Key, ".")
		body, ok := sections[section]
		if !ok {
			body = &yaml.Node{Kind: yaml.MappingNode}
			sections[section] = body
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: section},
				body,
			)
		}

		var value yaml.Node
		if err := value.Encode(defaultValue(opt)); err != nil {
			return nil, fmt.Errorf("encode %s: %w", opt.Key, err)
		}
		comment := opt.Description
		if !opt.HasDefault() {
			comment += " (required when used)"
		}
		body.Content = append(body.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: leaf, HeadComment: comment},
			&value,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderTOML() ([]byte, error) {
	tree := make(map[string]map[string]any)
	for _, opt := range options {
		section, leaf, _ := strings.Cut(opt.Key, ".")
		if tree[section] == nil {
			tree[section] = make(map[string]any)
		}
		tree[section][leaf] = defaultValue(opt)
	}
	return toml.Marshal(tree)
}
