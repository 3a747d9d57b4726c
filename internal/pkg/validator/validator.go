package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func registerCustomValidations() {
	validate.RegisterValidation("txn_type", oneOf("sale", "purchase", "return"))
	validate.RegisterValidation("movement_kind", oneOf("sale", "purchase", "return", "opening_stock", "adjustment", "damage", "theft"))
	validate.RegisterValidation("fraud_status", oneOf("flagged", "under_review", "confirmed_fraud", "false_positive", "resolved"))
	validate.RegisterValidation("risk_level", oneOf("low", "medium", "high", "critical"))
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Invalid UUID"
		case "txn_type":
			errors[field] = "Invalid type. Must be: sale, purchase, or return"
		case "movement_kind":
			errors[field] = "Invalid movement type"
		case "fraud_status":
			errors[field] = "Invalid status. Must be: flagged, under_review, confirmed_fraud, false_positive, or resolved"
		case "risk_level":
			errors[field] = "Invalid risk level. Must be: low, medium, high, or critical"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
