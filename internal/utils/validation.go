package contextutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidUsername checks that a username is non-empty printable ASCII without spaces.
func IsValidUsername(username string) bool {
	return validate.Var(username, "required,printascii,excludes= ") == nil
}

// IsValidLocationCode checks that a location code is non-empty and safe to embed
// in a URL query and a file name.
func IsValidLocationCode(code string) bool {
	return validate.Var(code, "required,max=64,printascii,excludesall=/\\?&= ") == nil
}

// ValidateStruct validates a struct using its `validate` tags.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
