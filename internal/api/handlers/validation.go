package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const dateLayout = "2006-01-02"

// requestValidate is the validator instance for request bodies.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

// now is replaced in tests
var now = time.Now

func init() {
	requestValidate = validator.New()

	// Report JSON field names rather than Go field names
	requestValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = requestValidate.RegisterValidation("before_today", validateBeforeToday)
}

// validateBeforeToday accepts YYYY-MM-DD dates strictly before the current day
func validateBeforeToday(fl validator.FieldLevel) bool {
	d, err := time.Parse(dateLayout, fl.Field().String())
	if err != nil {
		return false
	}
	today := now().UTC().Truncate(24 * time.Hour)
	return d.Before(today)
}

// validationFailed renders validator errors as a 422 with one message per field
func validationFailed(c *fiber.Ctx, err error) error {
	fields := fiber.Map{}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	} else {
		fields["body"] = err.Error()
	}

	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"message": "The given data was invalid",
		"errors":  fields,
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	case "before_today":
		return "must be a date before today"
	case "uuid":
		return "must be a UUID"
	default:
		return fmt.Sprintf("failed the %s check", fe.Tag())
	}
}

// badBody answers requests whose body is not valid JSON
func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
