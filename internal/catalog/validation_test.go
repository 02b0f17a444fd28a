package catalog

import (
	"errors"
	"testing"

	"github.com/nerrad567/avr-control/internal/request"
)

func TestCommandDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CommandDefinition
		wantErr error
	}{
		{
			name: "valid with parameter",
			cmd: CommandDefinition{
				ActionName: "volume_set", Endpoint: "/goform/formiPhoneAppDirect.xml", Template: "?MV{level}",
				Parameters: []ParameterSpec{{Name: "level", Type: ParamInteger}},
			},
		},
		{
			name: "unsupported method is not rejected",
			cmd:  CommandDefinition{ActionName: "odd", Endpoint: "/x", Method: "PATCH"},
		},
		{
			name:    "missing action name",
			cmd:     CommandDefinition{Endpoint: "/x"},
			wantErr: ErrInvalidCommand,
		},
		{
			name:    "relative endpoint",
			cmd:     CommandDefinition{ActionName: "a", Endpoint: "goform"},
			wantErr: ErrInvalidCommand,
		},
		{
			name:    "undeclared placeholder",
			cmd:     CommandDefinition{ActionName: "a", Endpoint: "/x", Template: "?SI{input_source}"},
			wantErr: ErrUndeclaredPlaceholder,
		},
		{
			name: "duplicate parameter",
			cmd: CommandDefinition{
				ActionName: "a", Endpoint: "/x",
				Parameters: []ParameterSpec{{Name: "p", Type: ParamString}, {Name: "p", Type: ParamString}},
			},
			wantErr: ErrInvalidCommand,
		},
		{
			name: "unknown parameter type",
			cmd: CommandDefinition{
				ActionName: "a", Endpoint: "/x",
				Parameters: []ParameterSpec{{Name: "p", Type: "decimal"}},
			},
			wantErr: ErrInvalidCommand,
		},
		{
			name: "min above max",
			cmd: CommandDefinition{
				ActionName: "a", Endpoint: "/x",
				Parameters: []ParameterSpec{{Name: "p", Type: ParamInteger, Min: ptr(10.0), Max: ptr(1.0)}},
			},
			wantErr: ErrInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParameters(t *testing.T) {
	cmd := &CommandDefinition{
		ActionName: "test",
		Parameters: []ParameterSpec{
			{Name: "level", Type: ParamInteger, Required: true, Min: ptr(0.0), Max: ptr(98.0)},
			{Name: "source", Type: ParamEnum, ValidValues: []string{"CD", "SAT/CBL"}},
			{Name: "gain", Type: ParamFloat},
			{Name: "on", Type: ParamBoolean},
			{Name: "zone", Type: ParamString, Required: true, Default: ptr("MAIN")},
		},
	}

	tests := []struct {
		name    string
		params  request.Params
		wantErr bool
	}{
		{name: "minimal", params: request.Params{{Name: "level", Value: 40}}},
		{name: "json number", params: request.Params{{Name: "level", Value: float64(98)}}},
		{name: "string level", params: request.Params{{Name: "level", Value: "0"}}},
		{name: "all valid", params: request.Params{
			{Name: "level", Value: 10}, {Name: "source", Value: "SAT/CBL"},
			{Name: "gain", Value: "-3.5"}, {Name: "on", Value: true},
		}},
		{name: "undeclared ignored", params: request.Params{{Name: "level", Value: 1}, {Name: "extra", Value: "x"}}},
		{name: "missing required", params: nil, wantErr: true},
		{name: "level above max", params: request.Params{{Name: "level", Value: 99}}, wantErr: true},
		{name: "level below min", params: request.Params{{Name: "level", Value: -1}}, wantErr: true},
		{name: "level not integer", params: request.Params{{Name: "level", Value: "loud"}}, wantErr: true},
		{name: "enum outside set", params: request.Params{{Name: "level", Value: 1}, {Name: "source", Value: "VCR"}}, wantErr: true},
		{name: "bad float", params: request.Params{{Name: "level", Value: 1}, {Name: "gain", Value: "x"}}, wantErr: true},
		{name: "bad bool", params: request.Params{{Name: "level", Value: 1}, {Name: "on", Value: "maybe"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(cmd, tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParameters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("ValidateParameters() error = %v, want %v", err, ErrInvalidParameter)
			}
		})
	}
}

func TestCommandDefinition_Info(t *testing.T) {
	cmd := CommandDefinition{
		ActionType: "volume", ActionName: "volume_set", Description: "Set volume",
		Parameters: []ParameterSpec{{Name: "level", Type: ParamInteger, Required: true, Max: ptr(98.0)}},
	}

	info := cmd.Info()
	if info.ActionName != "volume_set" || info.ActionType != "volume" {
		t.Errorf("Info() = %+v", info)
	}
	if len(info.Parameters) != 1 || info.Parameters[0].Type != "integer" || *info.Parameters[0].Max != 98 {
		t.Errorf("Info().Parameters = %+v", info.Parameters)
	}

	empty := (&CommandDefinition{ActionName: "power_on"}).Info()
	if empty.Parameters == nil {
		t.Error("Info().Parameters = nil, want empty slice")
	}
}
