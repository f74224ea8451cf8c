package tools

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// legacyQueryKey is the single string argument older prompts used to pass
// a whole JSON document.
const legacyQueryKey = "query"

// ParseArguments decodes raw tool arguments into an object, repairing
// malformed JSON when possible.
func ParseArguments(raw []byte) (map[string]any, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := unmarshalRepaired(s, &args); err != nil {
		return nil, malformed("%v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// decodeInput fills dst from args. A lone string "query" argument is taken
// as the JSON document of the real arguments.
func decodeInput(args map[string]any, dst any) error {
	if q, ok := args[legacyQueryKey].(string); ok && len(args) == 1 {
		if err := unmarshalRepaired(q, dst); err != nil {
			return malformed("%v", err)
		}
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return malformed("%v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return malformed("%v", err)
	}
	return nil
}

func unmarshalRepaired(s string, dst any) error {
	err := json.Unmarshal([]byte(s), dst)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(s)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), dst)
}

// fieldsOf maps the JSON names of a struct's exported fields to their values,
// flattening embedded structs. It is the environment validation rules run
// against.
func fieldsOf(v any) map[string]any {
	out := make(map[string]any)
	collectFields(reflect.Indirect(reflect.ValueOf(v)), out)
	return out
}

func collectFields(rv reflect.Value, out map[string]any) {
	if rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			collectFields(rv.Field(i), out)
			continue
		}
		if !f.IsExported() || tag == "-" {
			continue
		}
		name := f.Name
		if n, _, _ := strings.Cut(tag, ","); n != "" {
			name = n
		}
		out[name] = rv.Field(i).Interface()
	}
}
