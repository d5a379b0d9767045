package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DirectiveList is a raw directive list as written in a document.
//
// A version requirement keeps the source text of its scalar, so `- D: 1.10`
// requires 1.10.0 rather than the float 1.1 a generic decode would produce.
type DirectiveList []any

// UnmarshalYAML decodes a directive list element by element.
func (l *DirectiveList) UnmarshalYAML(node *yaml.Node) error {
	list, err := decodeList(node)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

func decodeList(node *yaml.Node) ([]any, error) {
	node = deref(node)
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: directive list must be a sequence", node.Line)
	}
	out := make([]any, 0, len(node.Content))
	for _, n := range node.Content {
		v, err := decodeElement(n)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeElement(n *yaml.Node) (any, error) {
	n = deref(n)
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 || n.Content[0].Kind != yaml.ScalarNode {
		return decodeAny(n)
	}
	key, val := n.Content[0].Value, deref(n.Content[1])
	switch {
	case key == GenerateKey:
		body, err := decodeGenerateBody(val)
		if err != nil {
			return nil, err
		}
		return map[string]any{GenerateKey: body}, nil
	case val.Kind == yaml.ScalarNode && val.Tag != "!!null":
		return map[string]any{key: val.Value}, nil
	}
	return decodeAny(n)
}

// decodeGenerateBody keeps the nested directive list on the same decoding
// path. Shape errors are left to Build and the validator.
func decodeGenerateBody(n *yaml.Node) (any, error) {
	if n.Kind != yaml.MappingNode {
		return decodeAny(n)
	}
	body := make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, deref(n.Content[i+1])
		var (
			v   any
			err error
		)
		if key == "directives" && val.Kind == yaml.SequenceNode {
			v, err = decodeList(val)
		} else {
			v, err = decodeAny(val)
		}
		if err != nil {
			return nil, err
		}
		body[key] = v
	}
	return body, nil
}

func decodeAny(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
