package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
    v *validator.Validate
}

func NewValidator() *Validator {
    v := validator.New(validator.WithRequiredStructEnabled())
    // report json field names instead of Go ones
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
        if name == "-" {
            return ""
        }
        return name
    })
    return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
    return cv.v.Struct(i)
}

// bind decodes the body into dst and runs the registered validator.
// Failures come back as *service.ValidationError.
func bind(c echo.Context, dst any) error {
    if err := c.Bind(dst); err != nil {
        return &service.ValidationError{Message: "invalid request body"}
    }
    if c.Echo().Validator == nil {
        return nil
    }
    if err := c.Validate(dst); err != nil {
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) && len(verrs) > 0 {
            fe := verrs[0]
            return &service.ValidationError{Field: fe.Field(), Message: describe(fe)}
        }
        return &service.ValidationError{Message: err.Error()}
    }
    return nil
}

func describe(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return "is required"
    case "email":
        return "must be a valid email address"
    case "min":
        return fmt.Sprintf("must be at least %s characters", fe.Param())
    case "gt":
        return fmt.Sprintf("must be greater than %s", fe.Param())
    case "gte":
        return fmt.Sprintf("must be at least %s", fe.Param())
    case "lte":
        return fmt.Sprintf("must be at most %s", fe.Param())
    }
    return "is invalid"
}
