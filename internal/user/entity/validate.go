package entity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit; longer passwords are rejected, not truncated.
	MaxPasswordBytes = 72
)

func (c UserCreate) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 320), is.Email),
		validation.Field(&c.Password, validation.Required,
			validation.RuneLength(MinPasswordLength, 0),
			validation.Length(0, MaxPasswordBytes)),
	)
}

// Validate checks only the fields that are present.
func (u UserUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Email, validation.NilOrNotEmpty, validation.Length(3, 320), is.Email),
		validation.Field(&u.Password, validation.NilOrNotEmpty,
			validation.RuneLength(MinPasswordLength, 0),
			validation.Length(0, MaxPasswordBytes)),
	)
}
