package validator

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	// Initialize validation
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// DecodeAndValidate unmarshals raw into v and runs struct validation on it.
func DecodeAndValidate(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
