package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 16

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// SaveRequest is the body of POST /save. Name is ignored when auto increment is on.
type SaveRequest struct {
	Name string `json:"name" validate:"omitempty,max=128,excludesall=/\\"`
}

// decodeAndValidate decodes a JSON body into data and validates it. An empty body
// leaves data at its zero value.
func decodeAndValidate[T any](r *http.Request, data *T) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(data); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return validateStruct(data)
}

// validateStruct runs the struct tags of data and joins the failures
func validateStruct(data any) error {
	if err := validate.Struct(data); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s %s", e.Field(), formatValidationMessage(e)))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "excludesall":
		return "must not contain path separators"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
