package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf returns the format for path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}

// Load reads the file at path, applies PIXELSTORM_* environment overrides
// and validates the result. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	var (
		tree map[string]any
		err  error
	)
	if path != "" {
		tree, err = readFile(path)
		if err != nil {
			return nil, err
		}
	}
	return build(path, DeepMerge(tree, NewEnvLoader(EnvPrefix).Load()))
}

// Parse decodes data without environment overrides and validates it.
func Parse(format Format, data []byte) (*Config, error) {
	tree, err := parseTree("<"+string(format)+">", format, data)
	if err != nil {
		return nil, err
	}
	return build("<"+string(format)+">", tree)
}

func readFile(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parseTree(path, format, data)
}

// parseTree parses data into a generic map.
func parseTree(source string, format Format, data []byte) (map[string]any, error) {
	var tree map[string]any
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &tree); err != nil {
			pe := &ParseError{Path: source, Message: err.Error(), Err: err}
			var de *toml.DecodeError
			if errors.As(err, &de) {
				pe.Line, pe.Column = de.Position()
			}
			return nil, pe
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
		}
	default:
		return nil, fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)
	}
	return tree, nil
}

// build decodes the merged tree over the defaults. The tree is re-encoded
// as TOML so both file formats share one strict decoder.
func build(source string, tree map[string]any) (*Config, error) {
	cfg := Default()
	if len(tree) > 0 {
		b, err := toml.Marshal(tree)
		if err != nil {
			return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
		}
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, decodeError(source, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

func decodeError(source string, err error) error {
	var sme *toml.StrictMissingError
	if errors.As(err, &sme) && len(sme.Errors) > 0 {
		keys := make([]string, 0, len(sme.Errors))
		for i := range sme.Errors {
			keys = append(keys, strings.Join(sme.Errors[i].Key(), "."))
		}
		return &ParseError{
			Path:    source,
			Message: "unknown setting " + strings.Join(keys, ", "),
			Err:     ErrUnknownSetting,
		}
	}
	return &ParseError{Path: source, Message: err.Error(), Err: err}
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}
	return dst
}
