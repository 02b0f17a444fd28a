package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BuiltinFS holds the catalog documents shipped with the binary.
//
//go:embed seed/*.yaml
var BuiltinFS embed.FS

// BuiltinDir is the directory of BuiltinFS holding the documents.
const BuiltinDir = "seed"

// Document is one YAML catalog file describing a single model.
type Document struct {
	Manufacturer    string            `yaml:"manufacturer"`
	Model           string            `yaml:"model"`
	FirmwareVersion string            `yaml:"firmware_version"`
	Protocol        string            `yaml:"protocol"`
	DefaultPort     int               `yaml:"default_port"`
	Description     string            `yaml:"description"`
	Commands        []CommandDocument `yaml:"commands"`

	// InputSources expands to one input_<code> command per entry, each
	// sending "?SI<code>" to InputEndpoint.
	InputEndpoint string        `yaml:"input_endpoint"`
	InputSources  []InputSource `yaml:"input_sources"`
}

// CommandDocument is the YAML form of a CommandDefinition.
type CommandDocument struct {
	ActionType  string              `yaml:"action_type"`
	ActionName  string              `yaml:"action_name"`
	Endpoint    string              `yaml:"endpoint"`
	Method      string              `yaml:"method"`
	Template    string              `yaml:"template"`
	Description string              `yaml:"description"`
	Parameters  []ParameterDocument `yaml:"parameters"`
}

// ParameterDocument is the YAML form of a ParameterSpec.
type ParameterDocument struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Default     *string  `yaml:"default"`
	ValidValues []string `yaml:"valid_values"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Description string   `yaml:"description"`
}

// InputSource is one selectable input of a model.
type InputSource struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

// SeedReport summarises a Seed run.
type SeedReport struct {
	Documents int
	Models    []string
	Commands  int
}

// ParseDocument decodes one YAML catalog document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Manufacturer == "" || doc.Model == "" {
		return nil, fmt.Errorf("%w: manufacturer and model are required", ErrInvalidDocument)
	}
	return &doc, nil
}

// ReceiverModel returns the model the document describes.
func (d *Document) ReceiverModel() *ReceiverModel {
	return &ReceiverModel{
		Manufacturer:    d.Manufacturer,
		Name:            d.Model,
		FirmwareVersion: d.FirmwareVersion,
		Protocol:        d.Protocol,
		DefaultPort:     d.DefaultPort,
		Description:     d.Description,
	}
}

// CommandDefinitions expands the document into command definitions,
// including the generated per-input commands. ModelID is left zero.
func (d *Document) CommandDefinitions() []CommandDefinition {
	cmds := make([]CommandDefinition, 0, len(d.Commands)+len(d.InputSources))
	for _, c := range d.Commands {
		cmd := CommandDefinition{
			ActionType:  c.ActionType,
			ActionName:  c.ActionName,
			Endpoint:    c.Endpoint,
			Method:      c.Method,
			Template:    c.Template,
			Description: c.Description,
		}
		for _, p := range c.Parameters {
			cmd.Parameters = append(cmd.Parameters, ParameterSpec{
				Name:        p.Name,
				Type:        ParamType(strings.ToLower(p.Type)),
				Required:    p.Required,
				Default:     p.Default,
				ValidValues: p.ValidValues,
				Min:         p.Min,
				Max:         p.Max,
				Description: p.Description,
			})
		}
		cmds = append(cmds, cmd)
	}

	for _, src := range d.InputSources {
		cmds = append(cmds, CommandDefinition{
			ActionType:  "input",
			ActionName:  InputActionName(src.Code),
			Endpoint:    d.InputEndpoint,
			Template:    "?SI" + src.Code,
			Description: "Select input: " + src.Description,
		})
	}
	return cmds
}

// InputActionName returns the action name of the fixed command selecting
// an input, e.g. "SAT/CBL" -> "input_sat_cbl".
func InputActionName(code string) string {
	return "input_" + strings.ReplaceAll(strings.ToLower(code), "/", "_")
}

// Seed loads every *.yaml document under dir in fsys and upserts its model
// and commands. Every command of a document is validated before anything
// of that document is written. Running Seed twice leaves the same catalog.
func Seed(ctx context.Context, repo Repository, fsys fs.FS, dir string) (SeedReport, error) {
	var report SeedReport

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return report, fmt.Errorf("reading catalog directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := path.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return report, fmt.Errorf("reading %s: %w", name, err)
		}

		model, n, err := seedDocument(ctx, repo, data)
		if err != nil {
			return report, fmt.Errorf("seeding %s: %w", name, err)
		}

		report.Documents++
		report.Commands += n
		report.Models = append(report.Models, model)
	}

	return report, nil
}

func seedDocument(ctx context.Context, repo Repository, data []byte) (string, int, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return "", 0, err
	}

	cmds := doc.CommandDefinitions()
	var errs []error
	for i := range cmds {
		if err := cmds[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", 0, err
	}

	model := doc.ReceiverModel()
	if err := repo.SaveModel(ctx, model); err != nil {
		return "", 0, err
	}

	for i := range cmds {
		cmds[i].ModelID = model.ID
		if err := repo.SaveCommand(ctx, &cmds[i]); err != nil {
			return "", 0, err
		}
	}
	return model.Name, len(cmds), nil
}
