package helpers

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground validator with telemetry-specific rules
type CustomValidator struct {
	validate *validator.Validate
}

// NewCustomValidator creates a new custom validator
func NewCustomValidator() *CustomValidator {
	v := validator.New()

	// Report errors against the JSON field names the caller actually sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Register custom validators
	v.RegisterValidation("command_type", validateCommandType)
	v.RegisterValidation("command_report_status", validateCommandReportStatus)
	v.RegisterValidation("rfc3339", validateRFC3339)

	return &CustomValidator{validate: v}
}

// Validate validates a struct and returns field errors keyed by JSON name
func (cv *CustomValidator) Validate(i interface{}) map[string]string {
	err := cv.validate.Struct(i)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		fields["request"] = err.Error()
		return fields
	}

	for _, fieldErr := range validationErrs {
		fields[fieldErr.Field()] = messageForTag(fieldErr)
	}
	return fields
}

// validateCommandType validates remote device command types
func validateCommandType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "REBOOT", "RESTART_SERVICE", "UPLOAD_LOGS", "UPDATE_NOW":
		return true
	}
	return false
}

// validateCommandReportStatus validates terminal command statuses a device may report
func validateCommandReportStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "COMPLETED", "FAILED":
		return true
	}
	return false
}

// validateRFC3339 validates that a string timestamp parses as RFC 3339,
// which always carries an explicit UTC offset
func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, fl.Field().String())
	return err == nil
}

func messageForTag(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fieldErr.Field(), fieldErr.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fieldErr.Field(), fieldErr.Param())
	case "command_type":
		return fmt.Sprintf("%s must be one of REBOOT, RESTART_SERVICE, UPLOAD_LOGS, UPDATE_NOW", fieldErr.Field())
	case "command_report_status":
		return fmt.Sprintf("%s must be COMPLETED or FAILED", fieldErr.Field())
	case "rfc3339":
		return fmt.Sprintf("%s must be an RFC 3339 timestamp with timezone information", fieldErr.Field())
	default:
		return fmt.Sprintf("%s is invalid", fieldErr.Field())
	}
}
