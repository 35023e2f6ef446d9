package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/doctype/internal/model"
)

// Definitions is the content of one definition file.
type Definitions struct {
	Doctypes  []model.Doctype  `json:"doctypes,omitempty"`
	Hooks     []model.Hook     `json:"hooks,omitempty"`
	Workflows []model.Workflow `json:"workflows,omitempty"`
}

// IsEmpty reports whether the file declared nothing.
func (d *Definitions) IsEmpty() bool {
	return len(d.Doctypes) == 0 && len(d.Hooks) == 0 && len(d.Workflows) == 0
}

// Format is a definition file syntax.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the syntax from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported definition file %s: want .cue, .json, .jsonc, .yaml or .yml", path)
}

// LoadFile reads doctypes, hooks and workflows from a definition file.
func LoadFile(path string) (*Definitions, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return Parse(src, format, path)
}

// Parse decodes definition source in the given format. name is used in
// error positions.
func Parse(src []byte, format Format, name string) (*Definitions, error) {
	var (
		doc []byte
		err error
	)
	switch format {
	case FormatCUE:
		doc, err = cueToJSON(src, name)
	case FormatJSON:
		doc, err = hujson.Standardize(src)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
	case FormatYAML:
		doc, err = yamlToJSON(src, name)
	default:
		return nil, fmt.Errorf("unsupported definition format %q", format)
	}
	if err != nil {
		return nil, err
	}

	var defs Definitions
	if err := json.Unmarshal(doc, &defs); err != nil {
		return nil, fmt.Errorf("%s: decode definitions: %w", name, err)
	}
	for i := range defs.Doctypes {
		Normalize(&defs.Doctypes[i])
	}
	return &defs, nil
}

// cueToJSON evaluates a CUE file and exports it as JSON. The value must be
// concrete: definitions may use CUE constraints and defaults, but the
// exported result is plain data.
func cueToJSON(src []byte, name string) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

// formatCUEError returns the first CUE error with its position.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}
	first := list[0]
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), first.Error())
	}
	return first
}

// yamlToJSON decodes YAML into plain values and re-encodes them as JSON so
// every format lands in the model types through the same decoder.
func yamlToJSON(src []byte, name string) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return buf.Bytes(), nil
}
