package service

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/smallbiznis/echowrite/internal/username"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return username.Valid(fl.Field().String())
	})
	return v
}

// check validates in and reports the first failure with a client message.
// Any missing field yields missingMsg so callers see one message per flow.
func (s *AuthService) check(in any, missingMsg string) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return wrapError(KindValidation, missingMsg, err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return wrapError(KindValidation, missingMsg, err)
		}
	}
	switch fieldErrs[0].Tag() {
	case "email":
		return wrapError(KindValidation, MsgInvalidEmail, err)
	case "username":
		return wrapError(KindValidation, MsgInvalidUsername, err)
	default:
		return wrapError(KindValidation, missingMsg, err)
	}
}
