package mdsession

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlConfigSource is the bundled ConfigSource implementation, backed by
// gopkg.in/yaml.v3. Concrete config-file parsers are out of scope per
// §1 ("the concrete parsers that populate configuration from XML"), so
// this package ships a YAML-backed source (a real third-party parser,
// not a hand-rolled one) rather than an XML equivalent.
//
// Wraps a *yaml.Node mapping rather than a decoded map[string]any:
// decoding straight to a Go map loses key order, and the "last channel
// in the set" deprecated-key rule (§4.1) depends on document order.
// yaml.Node's Content slice preserves key/value pairs in source order.
type yamlConfigSource struct {
	node *yaml.Node // MappingNode
}

// NewYAMLConfigSource parses raw YAML bytes into a ConfigSource.
func NewYAMLConfigSource(raw []byte) (ConfigSource, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	mapping := documentMapping(&root)
	return &yamlConfigSource{node: mapping}, nil
}

// LoadYAMLConfigFile reads and parses a YAML configuration file from
// disk.
func LoadYAMLConfigFile(path string) (ConfigSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewYAMLConfigSource(raw)
}

// documentMapping unwraps a parsed document down to its root mapping
// node, returning nil for an empty document (e.g. NewYAMLConfigSource
// called with no bytes).
func documentMapping(root *yaml.Node) *yaml.Node {
	n := root
	for n != nil && n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	return n
}

// mapValue returns the value node paired with key in a mapping node's
// Content slice (alternating key, value, key, value, ...).
func mapValue(mapping *yaml.Node, key string) (*yaml.Node, bool) {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], true
		}
	}
	return nil, false
}

// mapKeysInOrder returns a mapping node's keys in document order.
func mapKeysInOrder(mapping *yaml.Node) []string {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	return keys
}

func (s *yamlConfigSource) lookup(path string) (*yaml.Node, bool) {
	cur := s.node
	for _, seg := range strings.Split(path, ".") {
		v, ok := mapValue(cur, seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func (s *yamlConfigSource) GetString(path string) (string, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

func (s *yamlConfigSource) GetUint(path string) (uint64, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.ScalarNode {
		return 0, false
	}
	u, err := strconv.ParseUint(v.Value, 10, 64)
	return u, err == nil
}

func (s *yamlConfigSource) GetInt(path string) (int64, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.ScalarNode {
		return 0, false
	}
	i, err := strconv.ParseInt(v.Value, 10, 64)
	return i, err == nil
}

func (s *yamlConfigSource) GetFloat(path string) (float64, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.ScalarNode {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	return f, err == nil
}

func (s *yamlConfigSource) GetBool(path string) (bool, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.ScalarNode {
		return false, false
	}
	b, err := strconv.ParseBool(v.Value)
	return b, err == nil
}

func (s *yamlConfigSource) GetStringList(path string) ([]string, bool) {
	v, ok := s.lookup(path)
	if !ok || v.Kind != yaml.SequenceNode {
		return nil, false
	}
	out := make([]string, 0, len(v.Content))
	for _, item := range v.Content {
		out = append(out, item.Value)
	}
	return out, true
}

func (s *yamlConfigSource) ChannelNames() []string {
	return s.nodeNames("Channels")
}

func (s *yamlConfigSource) WarmStandbyChannelNames() []string {
	return s.nodeNames("WarmStandbyChannels")
}

func (s *yamlConfigSource) nodeNames(group string) []string {
	v, ok := mapValue(s.node, group)
	if !ok {
		return nil
	}
	return mapKeysInOrder(v)
}

func (s *yamlConfigSource) Channel(name string) (ConfigSource, bool) {
	return s.subNode("Channels", name)
}

func (s *yamlConfigSource) WarmStandbyChannel(name string) (ConfigSource, bool) {
	return s.subNode("WarmStandbyChannels", name)
}

func (s *yamlConfigSource) subNode(group, name string) (ConfigSource, bool) {
	groupNode, ok := mapValue(s.node, group)
	if !ok {
		return nil, false
	}
	node, ok := mapValue(groupNode, name)
	if !ok || node.Kind != yaml.MappingNode {
		return nil, false
	}
	return &yamlConfigSource{node: node}, true
}
