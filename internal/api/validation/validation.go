// Package validation checks request DTOs with go-playground/validator and decodes query strings
// with go-playground/form.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/quackform/vibes/internal/api/response"
)

// Request locations used as the prefix of ErrorDetail.Location.
const (
	InBody  = "body"
	InQuery = "query"
)

var (
	// Registrations happen in init only; Struct and Decode are safe for concurrent use afterwards.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	decoder = form.NewDecoder()

	validate.RegisterTagNameFunc(wireName)

	if err := validate.RegisterValidation("no_null_bytes", validateNoNullBytes); err != nil {
		slog.Error("Failed to register no_null_bytes validator", "error", err)
	}
}

// wireName reports a field by its json name, or its form name for query DTOs.
func wireName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}

		if name != "" {
			return name
		}
	}

	return f.Name
}

// ValidateStruct validates s against its validate tags.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("validate request: %w", err)
		}

		return validationErrors
	}

	return nil
}

func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		if fieldError.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fieldError.Param())
		}

		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "no_null_bytes":
		return field + " must not contain NULL bytes"
	default:
		return field + " is invalid"
	}
}

// ErrorDetails turns validation errors into problem details located under in.
func ErrorDetails(in string, err error) []response.ErrorDetail {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	details := make([]response.ErrorDetail, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		details = append(details, response.ErrorDetail{
			Location: in + "." + fieldError.Field(),
			Message:  formatFieldError(fieldError),
			Value:    fieldError.Value(),
		})
	}

	return details
}

// RespondValidationError writes a 400 problem listing every failed field.
func RespondValidationError(w http.ResponseWriter, in string, err error) {
	details := ErrorDetails(in, err)

	messages := make([]string, len(details))
	for i, d := range details {
		messages[i] = d.Message
	}

	detail := "validation failed: " + strings.Join(messages, "; ")
	if len(details) == 0 {
		detail = err.Error()
	}

	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: detail,
		Errors: details,
	})
}

// DecodeQuery decodes r's query string into dst and validates it.
func DecodeQuery(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("decode query parameters: %w", err)
	}

	return ValidateStruct(dst)
}

// validateNoNullBytes rejects strings Postgres TEXT cannot store.
func validateNoNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	if field.Kind() != reflect.String {
		return true
	}

	return !strings.Contains(field.String(), "\x00")
}
