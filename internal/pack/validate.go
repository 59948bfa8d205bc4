package pack

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("key", func(fl validator.FieldLevel) bool {
		return keyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("packname", func(fl validator.FieldLevel) bool {
		_, err := NormalizeName(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		_, err := NormalizePath(fl.Field().String())
		return err == nil
	})
	return v
}

// validateInput runs struct tag validation and converts the first failure into an
// invalid_data error naming the wire field.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Validation("invalid arguments: %v", err)
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return Validation("'%s' is required", field)
	case "key":
		return Validation("'%s' must match ^[a-z0-9][a-z0-9_-]{1,63}$ (got %q)", field, fe.Value())
	case "packname":
		_, nerr := NormalizeName(fmt.Sprint(fe.Value()))
		return nerr
	case "relpath":
		_, perr := NormalizePath(fmt.Sprint(fe.Value()))
		return perr
	case "min":
		return Validation("'%s' must be >= %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return Validation("'%s' is too long (max %s characters)", field, fe.Param())
		}
		return Validation("'%s' must be <= %s", field, fe.Param())
	case "oneof":
		return Validation("'%s' must be one of: %s (got %q)", field,
			strings.Join(strings.Fields(fe.Param()), ", "), fe.Value())
	default:
		return Validation("'%s' failed %s validation", field, fe.Tag())
	}
}

// legacyAliases maps retired request fields to their canonical names, per action.
var legacyAliases = map[string]map[string]string{
	ActionCreate: {"ttl": "ttl_minutes"},
	ActionUpsertSection: {
		"title":       "section_title",
		"description": "section_description",
		"order":       "section_order",
		"verdict":     "section_verdict",
	},
	ActionUpsertRef:     {"title": "ref_title", "why": "ref_why", "group": "ref_group"},
	ActionUpsertDiagram: {"why": "diagram_why"},
	ActionTouchTTL:      {"ttl": "ttl_minutes", "extend": "extend_minutes"},
	ActionRead:          {"cursor": "page_token", "match": "contains", "mode": "profile"},
}

// decodeArgs strictly decodes raw request arguments into dst. Legacy aliases fail with
// legacy_field and any field dst does not declare fails with unknown_field.
func decodeArgs(action string, fields map[string]json.RawMessage, raw json.RawMessage, dst any) error {
	allowed := wireFields(reflect.TypeOf(dst))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "action" {
			continue
		}
		if canonical, ok := legacyAliases[action][k]; ok && !allowed[k] {
			return &Error{
				Kind:    KindValidation,
				Code:    CodeLegacyField,
				Message: fmt.Sprintf("'%s' is not supported for %s; use '%s'", k, action, canonical),
				Details: FieldDetails{Field: k, Canonical: canonical},
			}
		}
		if !allowed[k] {
			return &Error{
				Kind:    KindValidation,
				Code:    CodeUnknownField,
				Message: fmt.Sprintf("unknown field '%s' for action %s", k, action),
				Details: FieldDetails{Field: k},
			}
		}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Validation("'%s' must be %s (got %s)", typeErr.Field, typeErr.Type.String(), typeErr.Value)
		}
		return Validation("invalid arguments: %v", err)
	}
	return validateInput(dst)
}

// wireFields lists the JSON field names of a struct, including embedded structs.
func wireFields(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			for name := range wireFields(f.Type) {
				out[name] = true
			}
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			out[name] = true
		}
	}
	return out
}

// splitArgs parses the argument object and extracts the action name.
func splitArgs(raw json.RawMessage) (map[string]json.RawMessage, string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = json.RawMessage("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, "", Validation("arguments must be a JSON object")
	}
	action := ""
	if v, ok := fields["action"]; ok {
		if err := json.Unmarshal(v, &action); err != nil {
			return nil, "", Validation("'action' must be a string")
		}
	}
	return fields, strings.TrimSpace(action), nil
}
