package identity

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// SignupPayload is the inbound signup request body.
type SignupPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

func (p SignupPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(4, 100)),
		validation.Field(&p.FirstName, validation.Length(0, 200)),
		validation.Field(&p.LastName, validation.Length(0, 200)),
	)
}

// SigninPayload is the inbound signin request body.
type SigninPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p SigninPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

// RefreshPayload is the inbound refresh request body.
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (p RefreshPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RefreshToken, validation.Required),
	)
}

// ChangePasswordPayload is the inbound password change request body. The new
// password must be longer than 3 characters and match its confirmation.
type ChangePasswordPayload struct {
	IDOrEmail          string `json:"id"`
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

func (p ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.IDOrEmail, validation.Required),
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required, validation.Length(4, 100)),
		validation.Field(
			&p.ConfirmNewPassword,
			validation.Required,
			validation.By(ValidateStringEquals(p.NewPassword)),
		),
	)
}

// ValidateStringEquals builds a rule asserting the value equals expected.
func ValidateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("values do not match")
		}
		return nil
	}
}
