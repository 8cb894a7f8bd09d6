package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"recolha/internal/models"

	"github.com/go-playground/validator/v10"
)

var errInvalidBody = errors.New("invalid JSON body")

type itemRequest struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

type bookingRequest struct {
	Date           string        `json:"date" validate:"required,datetime=2006-01-02"`
	ApproxTimeSlot string        `json:"approxTimeSlot" validate:"required,timeofday"`
	Items          []itemRequest `json:"items" validate:"required,min=1,dive"`
	Municipality   string        `json:"municipality" validate:"notblank"`
}

type bookingResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type stateRequest struct {
	State string `json:"state"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "timeofday", func(fl validator.FieldLevel) bool {
		_, err := models.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

var messages = map[string]string{
	"required":  "{field} is required",
	"notblank":  "{field} is required",
	"min":       "{field} must contain at least {param} entry",
	"datetime":  "{field} must be a date in YYYY-MM-DD format",
	"timeofday": "{field} must be a time in HH:MM format",
}

// validationMessage turns the first failed rule into a client-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	first := verrs[0]
	tmpl, ok := messages[first.Tag()]
	if !ok {
		return first.Error()
	}
	field := first.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	msg := strings.ReplaceAll(tmpl, "{field}", field)
	return strings.ReplaceAll(msg, "{param}", first.Param())
}

// decodeBooking reads and validates a booking request body.
func decodeBooking(v *validator.Validate, r io.Reader) (*bookingRequest, error) {
	var req bookingRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errInvalidBody
	}
	if err := v.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, validationMessage(err))
	}
	return &req, nil
}

// toDomain converts a validated request into service arguments.
func (req *bookingRequest) toDomain() (time.Time, models.TimeOfDay, []models.Item, error) {
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, models.TimeOfDay{}, nil, err
	}
	slot, err := models.ParseTimeOfDay(req.ApproxTimeSlot)
	if err != nil {
		return time.Time{}, models.TimeOfDay{}, nil, err
	}
	items := make([]models.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.Item{Name: it.Name, Description: it.Description})
	}
	return date, slot, items, nil
}
