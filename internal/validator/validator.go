// Package validator adapts go-playground/validator to echo.Validator.
package validator

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns a 400 echo.HTTPError describing the first failing field.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return echo.NewHTTPError(http.StatusBadRequest, fe.Field()+" failed on "+fe.Tag())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
