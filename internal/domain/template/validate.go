package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateVariables checks the values supplied in ctx against the
// template's declared VariableConfig constraints: required flags, declared
// types, regexp patterns, numeric ranges, and enum/choice membership.
// Declared defaults satisfy required variables. All violations are
// collected rather than stopping at the first.
func (t Template) ValidateVariables(ctx RenderContext) []error {
	var errs []error
	for name, cfg := range t.Variables {
		value, ok := Lookup(ctx, name)
		if !ok || value == nil {
			if cfg.Default != nil {
				continue
			}
			if cfg.Required {
				errs = append(errs, fmt.Errorf("variable %q is required", name))
			}
			continue
		}
		if err := checkVariable(name, cfg, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func checkVariable(name string, cfg VariableConfig, value interface{}) error {
	switch cfg.Type {
	case VariableTypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("variable %q must be a string, got %T", name, value)
		}
		return checkString(name, cfg, s)
	case VariableTypeNumber:
		f, ok := asNumber(value)
		if !ok {
			return fmt.Errorf("variable %q must be a number, got %T", name, value)
		}
		return checkNumber(name, cfg, f)
	case VariableTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("variable %q must be a boolean, got %T", name, value)
		}
	case VariableTypeArray:
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("variable %q must be an array, got %T", name, value)
		}
		return checkLength(name, cfg, float64(len(arr)))
	case VariableTypeObject:
		switch value.(type) {
		case map[string]interface{}, RenderContext:
		default:
			return fmt.Errorf("variable %q must be an object, got %T", name, value)
		}
	case VariableTypeChoice:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("variable %q must be a choice string, got %T", name, value)
		}
		choices := cfg.Choices
		if len(choices) == 0 {
			choices = cfg.Enum
		}
		if err := oneOf(s, choices); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
	}
	return nil
}

func checkString(name string, cfg VariableConfig, s string) error {
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return fmt.Errorf("variable %q has an invalid pattern %q", name, cfg.Pattern)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("variable %q does not match pattern %q", name, cfg.Pattern)
		}
	}
	if len(cfg.Enum) > 0 {
		if err := oneOf(s, cfg.Enum); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
	}
	return checkLength(name, cfg, float64(len(s)))
}

// checkLength applies min/max to a string's length or an array's size.
func checkLength(name string, cfg VariableConfig, length float64) error {
	if cfg.Min != nil {
		if err := validate.Var(length, fmt.Sprintf("min=%v", *cfg.Min)); err != nil {
			return fmt.Errorf("variable %q is shorter than the minimum %v", name, *cfg.Min)
		}
	}
	if cfg.Max != nil {
		if err := validate.Var(length, fmt.Sprintf("max=%v", *cfg.Max)); err != nil {
			return fmt.Errorf("variable %q exceeds the maximum %v", name, *cfg.Max)
		}
	}
	return nil
}

func checkNumber(name string, cfg VariableConfig, f float64) error {
	if cfg.Min != nil {
		if err := validate.Var(f, fmt.Sprintf("min=%v", *cfg.Min)); err != nil {
			return fmt.Errorf("variable %q is below the minimum %v", name, *cfg.Min)
		}
	}
	if cfg.Max != nil {
		if err := validate.Var(f, fmt.Sprintf("max=%v", *cfg.Max)); err != nil {
			return fmt.Errorf("variable %q is above the maximum %v", name, *cfg.Max)
		}
	}
	return nil
}

func oneOf(s string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return fmt.Errorf("value %q is not one of [%s]", s, strings.Join(allowed, ", "))
}

func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
