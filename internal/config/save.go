package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveLayerOrder updates the layer_order section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveLayerOrder(configPath string, layers []string) error {
	if err := ValidateLayerOrder(layers); err != nil {
		return err
	}
	if len(layers) == 0 {
		return fmt.Errorf("layer order must not be empty")
	}
	return saveSection(configPath, "layer_order", buildLayersNode(layers))
}

// SaveResolution updates the resolution section in the config file.
func SaveResolution(configPath string, r ResolutionConfig) error {
	if err := ValidateResolution(r); err != nil {
		return err
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	if r.ConflictStrategy != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "conflict_strategy"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: r.ConflictStrategy},
		)
	}
	if r.MergeStrategy != "" {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "merge_strategy"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: r.MergeStrategy},
		)
	}
	return saveSection(configPath, "resolution", node)
}

// saveSection replaces one top-level key in the config file, creating the
// file when missing, and writes the result atomically.
func saveSection(configPath, key string, valueNode *yaml.Node) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: key},
						valueNode,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			found := false
			for i := 0; i < len(root.Content)-1; i += 2 {
				if root.Content[i].Value == key {
					root.Content[i+1] = valueNode
					found = true
					break
				}
			}
			if !found {
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: key},
					valueNode,
				)
			}
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename).
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".skillstore.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

func buildLayersNode(layers []string) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(layers)),
	}
	for _, l := range layers {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: l})
	}
	return node
}
