package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldIssue describes one rejected request field.
type FieldIssue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(fieldName)
	}
}

// fieldName reports fields under their wire name: json for bodies, form for
// query strings.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

var ruleMessages = map[string]string{
	"required": "Field '%s' is required",
	"min":      "Field '%s' must be at least %s",
	"max":      "Field '%s' must be at most %s",
	"gte":      "Field '%s' must be at least %s",
	"lte":      "Field '%s' must be at most %s",
	"len":      "Field '%s' must have length %s",
	"oneof":    "Field '%s' must be one of %s",
	"datetime": "Field '%s' must match %s",
	"uuid":     "Field '%s' must be a UUID",
}

// BindingIssues lists the failed fields of a validation error. Other binding
// errors yield a single issue without a field.
func BindingIssues(err error) []FieldIssue {
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		issues := make([]FieldIssue, 0, len(ve))
		for _, fe := range ve {
			issues = append(issues, FieldIssue{Field: fe.Field(), Rule: fe.Tag(), Message: fieldMessage(fe)})
		}
		return issues
	}

	if errors.Is(err, io.EOF) {
		return []FieldIssue{{Rule: "body", Message: "Request body is empty"}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return []FieldIssue{{Rule: "json", Message: fmt.Sprintf("Invalid JSON at byte offset %d", syntaxErr.Offset)}}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []FieldIssue{{
			Field:   typeErr.Field,
			Rule:    "type",
			Message: fmt.Sprintf("Field '%s' should be of type %s", typeErr.Field, typeErr.Type.String()),
		}}
	}
	return []FieldIssue{{Message: err.Error()}}
}

// FormatBindingError joins the issue messages into one line.
func FormatBindingError(err error) string {
	issues := BindingIssues(err)
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return strings.Join(messages, ", ")
}

func fieldMessage(fe validator.FieldError) string {
	format, ok := ruleMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("Field '%s' failed validation for '%s'", fe.Field(), fe.Tag())
	}
	param := fe.Param()
	if fe.Tag() == "oneof" {
		param = strings.ReplaceAll(param, " ", ", ")
	}
	if strings.Count(format, "%s") == 1 {
		return fmt.Sprintf(format, fe.Field())
	}
	return fmt.Sprintf(format, fe.Field(), param)
}
