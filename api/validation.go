package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// EncryptRequest is the body of POST /api/v1/encrypt. Data must be present
// but may be empty.
type EncryptRequest struct {
	Key  string  `json:"key" validate:"required"`
	Data *string `json:"data" validate:"required"`
}

// DecryptRequest is the body of POST /api/v1/decrypt
type DecryptRequest struct {
	Key  string `json:"key" validate:"required"`
	Data string `json:"data" validate:"required,hexadecimal"`
}

// CryptoResponse carries the result of either operation
type CryptoResponse struct {
	Data string `json:"data"`
}

// validateRequest runs struct validation and flattens the result into one message
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
