package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

const (
	maxSchemaFileBytes = 1 << 20 // 1 MiB
	maxSchemaDepth     = 20
)

func handleJSONSchema(_ context.Context, _ Config, workspace string, idx int, c model.Check) CheckRecord {
	start := time.Now()

	schema := c.Schema
	if schema == nil && c.SchemaPath != "" {
		abs, ok := resolveSafe(workspace, c.SchemaPath)
		if !ok {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
				Reason: &model.Reason{Type: "invalid_path", Index: idx, Path: c.SchemaPath}}
		}
		info, err := os.Stat(abs)
		if err != nil {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
				Reason: &model.Reason{Type: "missing_schema", Index: idx, Path: c.SchemaPath}}
		}
		if info.Size() > maxSchemaFileBytes {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
				Reason: &model.Reason{Type: "file_too_large", Index: idx, Path: c.SchemaPath}}
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
				Reason: &model.Reason{Type: "missing_schema", Index: idx, Path: c.SchemaPath}}
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
				Reason: &model.Reason{Type: "missing_schema", Index: idx, Path: c.SchemaPath, Detail: err.Error()}}
		}
	}
	if schema == nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "missing_schema", Index: idx}}
	}

	if depth := schemaDepth(schema, 0); depth > maxSchemaDepth {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "schema_too_deep", Index: idx, Detail: fmt.Sprintf("depth %d", depth)}}
	}

	abs, ok := resolveSafe(workspace, c.Path)
	if !ok {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "invalid_path", Index: idx, Path: c.Path}}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "missing_file", Index: idx, Path: c.Path}}
	}
	if info.Size() > maxSchemaFileBytes {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "file_too_large", Index: idx, Path: c.Path}}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "missing_file", Index: idx, Path: c.Path}}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "schema_mismatch", Index: idx, Path: c.Path, Detail: "invalid JSON"}}
	}

	dur := time.Since(start).Milliseconds()
	if errMsg := validateAgainstSchema(doc, schema, 0); errMsg != "" {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "schema_mismatch", Index: idx, Path: c.Path, Detail: errMsg}}
	}
	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, DurationMS: dur, Evidence: "schema satisfied"}
}

func schemaDepth(node any, depth int) int {
	if depth > maxSchemaDepth+5 {
		return depth
	}
	m, ok := node.(map[string]any)
	if !ok {
		return depth
	}
	max := depth
	for _, key := range []string{"properties", "items"} {
		if sub, ok := m[key]; ok {
			switch v := sub.(type) {
			case map[string]any:
				if key == "properties" {
					for _, prop := range v {
						if d := schemaDepth(prop, depth+1); d > max {
							max = d
						}
					}
				} else {
					if d := schemaDepth(v, depth+1); d > max {
						max = d
					}
				}
			}
		}
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if sub, ok := m[key].([]any); ok {
			for _, alt := range sub {
				if d := schemaDepth(alt, depth+1); d > max {
					max = d
				}
			}
		}
	}
	return max
}

// validateAgainstSchema implements a small, struct-shaped subset of JSON
// Schema: types, required, properties, items, enum, anyOf/oneOf/allOf. Only
// these recognized keywords are enforced; unknown keywords are ignored.
func validateAgainstSchema(value any, schema map[string]any, depth int) string {
	if depth > maxSchemaDepth {
		return "schema exceeds maximum depth"
	}

	if alts, ok := schema["anyOf"].([]any); ok {
		for _, alt := range alts {
			if sub, ok := alt.(map[string]any); ok {
				if validateAgainstSchema(value, sub, depth+1) == "" {
					return ""
				}
			}
		}
		return "value matched none of anyOf"
	}
	if alts, ok := schema["oneOf"].([]any); ok {
		matches := 0
		for _, alt := range alts {
			if sub, ok := alt.(map[string]any); ok {
				if validateAgainstSchema(value, sub, depth+1) == "" {
					matches++
				}
			}
		}
		if matches != 1 {
			return fmt.Sprintf("value matched %d of oneOf, expected exactly 1", matches)
		}
	}
	if alts, ok := schema["allOf"].([]any); ok {
		for _, alt := range alts {
			if sub, ok := alt.(map[string]any); ok {
				if msg := validateAgainstSchema(value, sub, depth+1); msg != "" {
					return msg
				}
			}
		}
	}

	if t, ok := schema["type"].(string); ok {
		if !typeMatches(value, t) {
			return fmt.Sprintf("expected type %s", t)
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		found := false
		for _, e := range enum {
			if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
				found = true
				break
			}
		}
		if !found {
			return "value not in enum"
		}
	}

	if obj, ok := value.(map[string]any); ok {
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				key, _ := r.(string)
				if _, present := obj[key]; !present {
					return fmt.Sprintf("missing required property %q", key)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]any); ok {
			for key, propSchema := range props {
				v, present := obj[key]
				if !present {
					continue
				}
				sub, ok := propSchema.(map[string]any)
				if !ok {
					continue
				}
				if msg := validateAgainstSchema(v, sub, depth+1); msg != "" {
					return fmt.Sprintf("property %q: %s", key, msg)
				}
			}
		}
	}

	if arr, ok := value.([]any); ok {
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range arr {
				if msg := validateAgainstSchema(item, itemSchema, depth+1); msg != "" {
					return fmt.Sprintf("item %d: %s", i, msg)
				}
			}
		}
	}

	return ""
}

func typeMatches(value any, t string) bool {
	switch t {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
