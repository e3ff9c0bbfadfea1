/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly and runs struct-tag validation so handlers only
ever see well-formed input.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

// MaxJSONBodySize caps the size of any JSON request body.
const MaxJSONBodySize int64 = 1 << 20 // 1 MB

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the JSON request body into dst and validates it.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxJSONBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return Validate(dst)
}

// Validate runs the validator struct tags on v.
func Validate(v any) *errs.CustomError {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			logx.Debug("request validation failed",
				"field", fieldErrs[0].Namespace(),
				"rule", fieldErrs[0].Tag(),
			)
		}
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
