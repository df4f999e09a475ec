package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the process-wide validator which reports JSON field names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeJSON decodes the request body into dst and validates it. The returned
// error is always an AppError ready for WriteError.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return BadRequest("BAD_REQUEST", "request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return NewAppError("BODY_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err)
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return &AppError{Code: "BAD_REQUEST", Message: "invalid body", HTTPStatus: http.StatusBadRequest, Err: err, Details: map[string]any{"offset": syntaxErr.Offset}}
		}
		return &AppError{Code: "BAD_REQUEST", Message: "invalid body", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return ValidateStruct(dst)
}

// ValidateStruct runs struct tag validation and maps failures to field details.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &AppError{Code: "VALIDATION_FAILED", Message: "invalid request", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if idx := strings.Index(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		fields[name] = fe.Tag()
	}
	return &AppError{Code: "VALIDATION_FAILED", Message: "invalid request", HTTPStatus: http.StatusBadRequest, Err: err, Details: fields}
}
