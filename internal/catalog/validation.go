package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/avr-control/internal/request"
)

// Validate checks a command definition at authoring time: the action name
// is set, the endpoint is a path, parameter names are unique and every
// template placeholder names a declared parameter.
//
// The HTTP method is deliberately not checked here; an unsupported method
// surfaces as a failure when the command is executed.
func (c *CommandDefinition) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ActionName) == "" {
		errs = append(errs, fmt.Errorf("%w: action name is required", ErrInvalidCommand))
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("%w: %s: endpoint %q must start with /", ErrInvalidCommand, c.ActionName, c.Endpoint))
	}

	seen := make(map[string]bool, len(c.Parameters))
	for _, p := range c.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%w: %s: parameter without a name", ErrInvalidCommand, c.ActionName))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: %s: duplicate parameter %q", ErrInvalidCommand, c.ActionName, p.Name))
		}
		seen[p.Name] = true

		switch p.Type {
		case ParamString, ParamInteger, ParamFloat, ParamBoolean, ParamEnum:
		default:
			errs = append(errs, fmt.Errorf("%w: %s: parameter %q has unknown type %q", ErrInvalidCommand, c.ActionName, p.Name, p.Type))
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			errs = append(errs, fmt.Errorf("%w: %s: parameter %q has min above max", ErrInvalidCommand, c.ActionName, p.Name))
		}
	}

	for _, name := range request.Placeholders(c.Template) {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("%w: %s: {%s}", ErrUndeclaredPlaceholder, c.ActionName, name))
		}
	}

	return errors.Join(errs...)
}

// ValidateParameters checks params against the command's declared
// parameters: required ones are present, values parse as the declared
// type, enum values are in the valid set and numbers are within bounds.
// Parameters the command does not declare are ignored.
//
// This is advisory metadata enforcement for the boundary layer; Execute
// only calls it when configured to.
func ValidateParameters(cmd *CommandDefinition, params request.Params) error {
	var errs []error

	for _, spec := range cmd.Parameters {
		value, ok := params.Get(spec.Name)
		if !ok {
			if spec.Required && spec.Default == nil {
				errs = append(errs, fmt.Errorf("%w: %s is required", ErrInvalidParameter, spec.Name))
			}
			continue
		}
		if err := spec.check(request.String(value)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// check validates one textual value against the spec.
func (p *ParameterSpec) check(text string) error {
	var number *float64

	switch p.Type {
	case ParamInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidParameter, p.Name, text)
		}
		f := float64(n)
		number = &f
	case ParamFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidParameter, p.Name, text)
		}
		number = &f
	case ParamBoolean:
		if _, err := strconv.ParseBool(text); err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidParameter, p.Name, text)
		}
	}

	if len(p.ValidValues) > 0 && !slices.Contains(p.ValidValues, text) {
		return fmt.Errorf("%w: %s=%q not in %s", ErrInvalidParameter, p.Name, text, strings.Join(p.ValidValues, ","))
	}

	if number != nil {
		if p.Min != nil && *number < *p.Min {
			return fmt.Errorf("%w: %s=%s below minimum %g", ErrInvalidParameter, p.Name, text, *p.Min)
		}
		if p.Max != nil && *number > *p.Max {
			return fmt.Errorf("%w: %s=%s above maximum %g", ErrInvalidParameter, p.Name, text, *p.Max)
		}
	}
	return nil
}
