package booking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"schedulease/internal/apperr"
	"schedulease/internal/models"
)

// CreateRequest is the payload of a new booking.
type CreateRequest struct {
	Date        string `json:"date" validate:"required,isodate"`
	StartTime   string `json:"start_time" validate:"required,clock"`
	Duration    int    `json:"duration" validate:"required,min=1,max=1440"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateRequest carries the editable free-text fields. Empty fields are left unchanged.
type UpdateRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// WindowRequest describes an availability window.
type WindowRequest struct {
	Date      string `json:"date" validate:"required,isodate"`
	TimeStart string `json:"time_start" validate:"required,clock"`
	TimeEnd   string `json:"time_end" validate:"required,clock"`
}

// NewValidator returns a validator that knows the clock and isodate tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := models.ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError turns validator output into a single readable apperr.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "clock":
			msgs = append(msgs, fmt.Sprintf("%s must be HH:MM", fe.Field()))
		case "isodate":
			msgs = append(msgs, fmt.Sprintf("%s must be YYYY-MM-DD", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}
