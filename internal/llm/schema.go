package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared: validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationIssue is one schema violation in model output.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Issue codes beyond validator tag names.
const (
	CodeParseFailure = "parse_failure"
	CodeTypeMismatch = "type_mismatch"
)

// ParseAndValidate decodes cleaned JSON into T and checks it against T's
// validate tags. All violations are returned together so the repair prompt
// can list them.
func ParseAndValidate[T any](raw string) (T, []ValidationIssue) {
	var out T

	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, []ValidationIssue{{
				Path:    typeErr.Field,
				Message: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
				Code:    CodeTypeMismatch,
			}}
		}
		return out, []ValidationIssue{{
			Path:    "$",
			Message: err.Error(),
			Code:    CodeParseFailure,
		}}
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]ValidationIssue, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, ValidationIssue{
					Path:    fieldPath(fe),
					Message: validationMessage(fe),
					Code:    fe.Tag(),
				})
			}
			return out, issues
		}
		return out, []ValidationIssue{{Path: "$", Message: err.Error(), Code: CodeParseFailure}}
	}

	return out, nil
}

// fieldPath drops the top-level struct name from the validator namespace so
// paths read like JSON pointers rather than Go type names.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
