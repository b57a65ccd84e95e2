package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding a document arrived in.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is a decoded defaults or revision payload. The raw bytes are kept
// so callers can recover member ordering, which the generic map form loses.
type Document struct {
	Format Format
	Data   map[string]any
	raw    []byte
}

// ParseDocument decodes raw as JSON or YAML into a generic map. JSON numbers
// are preserved as json.Number so integer and fractional inputs stay
// distinguishable downstream. YAML mapping keys are rendered as strings.
func ParseDocument(raw []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("hydrate: document is empty")
	}
	if trimmed[0] == '{' {
		data, err := decodeJSONMap(raw)
		if err != nil {
			return nil, err
		}
		return &Document{Format: FormatJSON, Data: data, raw: append([]byte(nil), raw...)}, nil
	}
	node, err := yamlRoot(raw)
	if err != nil {
		return nil, err
	}
	value, err := yamlValue(node)
	if err != nil {
		return nil, err
	}
	data, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hydrate: yaml document root must be a mapping")
	}
	return &Document{Format: FormatYAML, Data: data, raw: append([]byte(nil), raw...)}, nil
}

// Keys returns the member names of the object at path in declaration order.
func (d *Document) Keys(path ...string) ([]string, error) {
	if d == nil {
		return nil, fmt.Errorf("hydrate: document is nil")
	}
	if d.Format == FormatYAML {
		return yamlKeys(d.raw, path)
	}
	return jsonKeys(d.raw, path)
}

func decodeJSONMap(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("hydrate: decode json document: %w", err)
	}
	return data, nil
}

func jsonKeys(raw []byte, path []string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := expectObjectOpen(dec); err != nil {
		return nil, err
	}
	return collectObjectKeys(dec, path)
}

func collectObjectKeys(dec *json.Decoder, path []string) ([]string, error) {
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("hydrate: scan keys: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("hydrate: scan keys: unexpected token %v", tok)
		}
		if len(path) > 0 && key == path[0] {
			if err := expectObjectOpen(dec); err != nil {
				return nil, err
			}
			return collectObjectKeys(dec, path[1:])
		}
		if len(path) == 0 {
			keys = append(keys, key)
		}
		if err := skipJSONValue(dec); err != nil {
			return nil, err
		}
	}
	if len(path) > 0 {
		return nil, fmt.Errorf("hydrate: missing object %q", path[0])
	}
	return keys, nil
}

func expectObjectOpen(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("hydrate: scan keys: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("hydrate: expected object, found %v", tok)
	}
	return nil
}

func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("hydrate: scan keys: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("hydrate: scan keys: %w", err)
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func yamlRoot(raw []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("hydrate: decode yaml document: %w", err)
	}
	node := &root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, fmt.Errorf("hydrate: yaml document is empty")
		}
		node = node.Content[0]
	}
	return node, nil
}

func yamlValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return yamlValue(node.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("hydrate: yaml mapping key at line %d must be a scalar", key.Line)
			}
			value, err := yamlValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[key.Value] = value
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case yaml.ScalarNode:
		var value any
		if err := node.Decode(&value); err != nil {
			return nil, fmt.Errorf("hydrate: decode yaml scalar at line %d: %w", node.Line, err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("hydrate: unsupported yaml node kind %d", node.Kind)
	}
}

func yamlKeys(raw []byte, path []string) ([]string, error) {
	node, err := yamlRoot(raw)
	if err != nil {
		return nil, err
	}
	for _, part := range path {
		next := yamlChild(node, part)
		if next == nil {
			return nil, fmt.Errorf("hydrate: missing object %q", part)
		}
		node = next
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("hydrate: expected mapping at %v", path)
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys, nil
}

func yamlChild(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			child := node.Content[i+1]
			if child.Kind == yaml.AliasNode {
				child = child.Alias
			}
			return child
		}
	}
	return nil
}
