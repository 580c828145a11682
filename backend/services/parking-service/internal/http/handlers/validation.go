package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	platePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{2}[A-Z0-9]$`)
	validate     = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("plate", func(fl validator.FieldLevel) bool {
		return platePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("fullname", func(fl validator.FieldLevel) bool {
		return validFullName(fl.Field().String())
	})
	return v
}

// validFullName wants at least two words of letters, each two or more runes long.
func validFullName(name string) bool {
	words := strings.Fields(name)
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if len([]rune(w)) < 2 {
			return false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) {
				return false
			}
		}
	}
	return true
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// validationMessage renders the first failed rule in a form fit for a client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "plate":
		return fmt.Sprintf("%s must look like ABC123 or ABC12D", fe.Field())
	case "fullname":
		return fmt.Sprintf("%s needs first and last name, letters only", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %s", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	case "len":
		return fmt.Sprintf("%s must have %s characters", fe.Field(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s length out of range", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
