package validation

import (
	"github.com/go-playground/validator/v10"
	"reflect"
	"strings"
	"time"
)

// RegisterScheduleValidation adds the ianaZone tag and reports fields by
// their json names.
func RegisterScheduleValidation(validate *validator.Validate) error {
	err := validate.RegisterValidation("ianaZone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return err
	}

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		fullJson := field.Tag.Get("json")
		if fullJson == "-" {
			return ""
		}
		jsonName := strings.SplitN(fullJson, ",", 2)[0]
		if jsonName != "" {
			return jsonName
		}
		return field.Name
	})
	return nil
}
