package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// lowercase words joined by single dashes
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

func validateSlug(fl validator.FieldLevel) bool {
	return ValidSlug(fl.Field().String())
}

// notify preference for hints: none, all, or a single address
func validateNotifyEmails(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "none" || v == "all" {
		return true
	}
	return fl.Field().Len() > 0 && emailPattern.MatchString(v)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
