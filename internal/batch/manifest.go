package batch

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/config"
)

// ManifestFile is the override manifest written per workshop publisher.
const ManifestFile = "config.yaml"

// Override is one entry of an override manifest.
type Override struct {
	WorkshopID string `yaml:"WorkshopId"`
	Repository string `yaml:"Repository"`
}

// RepositoryURL expands the override template for one publisher and category.
// {key} becomes the per-asset placeholder the consuming plugin fills in.
func RepositoryURL(template string, publisher uint64, cat asset.Category) string {
	if template == "" {
		template = config.DefaultOverrideURL
	}
	key := "{ItemId}"
	if cat == asset.CategoryVehicle {
		key = "{VehicleId}"
	}
	return strings.NewReplacer(
		"{publisher}", strconv.FormatUint(publisher, 10),
		"{category}", cat.Plural(),
		"{key}", key,
	).Replace(template)
}

// EncodeManifest renders a single-entry override list with usage comments.
func EncodeManifest(o Override) ([]byte, error) {
	entry := &yaml.Node{Kind: yaml.MappingNode}
	entry.Content = []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "WorkshopId"},
		{Kind: yaml.ScalarNode, Value: o.WorkshopID, Style: yaml.DoubleQuotedStyle, LineComment: "The ID of the override."},
		{Kind: yaml.ScalarNode, Value: "Repository"},
		{Kind: yaml.ScalarNode, Value: o.Repository, Style: yaml.DoubleQuotedStyle, LineComment: "The repository of the override."},
	}
	doc := &yaml.Node{
		Kind:        yaml.SequenceNode,
		HeadComment: "Use this in your UnturnedImages/config.yaml file",
		Content:     []*yaml.Node{entry},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses a manifest written by WriteManifest.
func DecodeManifest(b []byte) ([]Override, error) {
	var out []Override
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return out, nil
}

// WriteManifest overwrites <dir>/config.yaml and returns its path.
func WriteManifest(dir string, publisher uint64, cat asset.Category, template string) (string, error) {
	data, err := EncodeManifest(Override{
		WorkshopID: strconv.FormatUint(publisher, 10),
		Repository: RepositoryURL(template, publisher, cat),
	})
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ManifestFile)
	if err := config.WriteFileAtomic(path, data); err != nil {
		return path, err
	}
	return path, nil
}
