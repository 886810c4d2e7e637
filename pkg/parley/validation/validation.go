package validation

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/parleychat/parley/pkg/parley/apperr"
)

var registerOnce sync.Once

// Register installs the custom rules and JSON field naming on gin's
// validator engine. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("notblank", validators.NotBlank)
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// BindJSON decodes and validates the request body into obj. Failures come
// back as validation errors with a readable message.
func BindJSON(c *gin.Context, obj interface{}) error {
	Register()
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperr.Validation("%s", Describe(err))
	}
	return nil
}

// BindQuery validates query parameters into obj
func BindQuery(c *gin.Context, obj interface{}) error {
	Register()
	if err := c.ShouldBindQuery(obj); err != nil {
		return apperr.Validation("%s", Describe(err))
	}
	return nil
}

// Describe turns a binding error into a client-facing message
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describeField(fe))
		}
		return strings.Join(msgs, ", ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntaxErr):
		return "request body is not valid JSON"
	case errors.As(err, &typeErr):
		return typeErr.Field + " has the wrong type"
	}
	return "invalid request"
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "required_without":
		return field + " or " + jsonName(param) + " is required"
	case "excluded_with":
		return field + " cannot be combined with " + jsonName(param)
	case "min":
		return field + " must be at least " + param + " characters"
	case "max":
		return field + " must be at most " + param + " characters"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return field + " must be one of: " + param
	case "uuid", "uuid4":
		return field + " must be a valid identifier"
	case "gte", "lte":
		return field + " is out of range"
	default:
		return field + " is invalid"
	}
}

// jsonName maps the Go field names used in cross-field tags to their wire names
func jsonName(goField string) string {
	var b strings.Builder
	for i, r := range goField {
		if i > 0 && r >= 'A' && r <= 'Z' && !(goField[i-1] >= 'A' && goField[i-1] <= 'Z') {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
