// pkg/validator/validator.go
package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// Init configures the shared validator instance. Must be called once at
// startup before any handler runs.
func Init() {
	validate = validator.New()
}

// Validate checks a struct against its `validate` tags and folds all
// failures into one readable error.
func Validate(s interface{}) error {
	if validate == nil {
		Init()
	}
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
