package catalog

import "time"

// Defaults applied when a model or command leaves them unset.
const (
	DefaultProtocol = "http"
	DefaultPort     = 80
	DefaultMethod   = "GET"
)

// ParamType is the declared type of a command parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
	ParamEnum    ParamType = "enum"
)

// ReceiverModel is one manufacturer/model's control surface.
type ReceiverModel struct {
	ID              int64
	Manufacturer    string
	Name            string // unique, e.g. "AVR-X2300W"
	FirmwareVersion string
	Protocol        string
	DefaultPort     int
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CommandDefinition is a request template bound to one action of one model.
type CommandDefinition struct {
	ID          int64
	ModelID     int64
	ActionType  string // grouping for consumers: power, volume, input...
	ActionName  string // unique within the model
	Endpoint    string
	Method      string
	Template    string
	Description string
	Parameters  []ParameterSpec
}

// ParameterSpec documents and constrains one template parameter.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     *string
	ValidValues []string
	Min         *float64
	Max         *float64
	Description string
}

// Parameter returns the spec named name.
func (c *CommandDefinition) Parameter(name string) (*ParameterSpec, bool) {
	for i := range c.Parameters {
		if c.Parameters[i].Name == name {
			return &c.Parameters[i], true
		}
	}
	return nil, false
}

// CommandInfo is the read projection of a command offered to API consumers.
type CommandInfo struct {
	ActionType  string          `json:"action_type"`
	ActionName  string          `json:"action_name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo is the read projection of a ParameterSpec.
type ParameterInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	ValidValues []string `json:"valid_values,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Default     *string  `json:"default,omitempty"`
}

// Info projects the command for listing.
func (c *CommandDefinition) Info() CommandInfo {
	params := make([]ParameterInfo, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		params = append(params, ParameterInfo{
			Name:        p.Name,
			Type:        string(p.Type),
			Required:    p.Required,
			ValidValues: p.ValidValues,
			Min:         p.Min,
			Max:         p.Max,
			Default:     p.Default,
		})
	}
	return CommandInfo{
		ActionType:  c.ActionType,
		ActionName:  c.ActionName,
		Description: c.Description,
		Parameters:  params,
	}
}
