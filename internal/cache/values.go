package cache

import (
	"strconv"
	"strings"

	language "github.com/hanpama/graphcache/internal/language"
)

// resolveValue converts an AST value to a Go value, substituting variable
// references at any nesting depth. An unbound variable is a
// MissingVariableError.
func resolveValue(value *language.Value, variables map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch value.Kind {
	case language.Variable:
		name := strings.TrimPrefix(value.Raw, "$")
		if v, ok := variables[name]; ok {
			return v, nil
		}
		if v, ok := variables[value.Raw]; ok {
			return v, nil
		}
		return nil, &MissingVariableError{Name: name}
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv, nil
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv, nil
	case language.StringValue, language.BlockValue:
		return value.Raw, nil
	case language.BooleanValue:
		return value.Raw == "true", nil
	case language.NullValue:
		return nil, nil
	case language.EnumValue:
		return value.Raw, nil
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			v, err := resolveValue(c.Value, variables)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			v, err := resolveValue(f.Value, variables)
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		return m, nil
	default:
		return nil, nil
	}
}

// resolveArguments resolves a field's argument list against the variable
// bindings. Returns nil for an empty argument list.
func resolveArguments(args language.ArgumentList, variables map[string]any) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for _, arg := range args {
		v, err := resolveValue(arg.Value, variables)
		if err != nil {
			return nil, err
		}
		out[arg.Name] = v
	}
	return out, nil
}
