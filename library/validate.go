package library

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Limits bounds the length of stored text columns.
type Limits struct {
	UsernameMin    int `validate:"gte=1"`
	UsernameMax    int `validate:"gtefield=UsernameMin"`
	PasswordMin    int `validate:"gte=1"`
	PasswordMax    int `validate:"gtefield=PasswordMin,lte=72"`
	EmailMax       int `validate:"gte=6"`
	NameMax        int `validate:"gte=1"`
	TitleMax       int `validate:"gte=1"`
	BarcodeMax     int `validate:"gte=1"`
	ISBNMax        int `validate:"gte=10"`
	DescriptionMax int `validate:"gte=0"`
}

// DefaultLimits mirrors the column sizes of the schema.
func DefaultLimits() Limits {
	return Limits{
		UsernameMin:    3,
		UsernameMax:    20,
		PasswordMin:    5,
		PasswordMax:    72,
		EmailMax:       255,
		NameMax:        100,
		TitleMax:       255,
		BarcodeMax:     50,
		ISBNMax:        17,
		DescriptionMax: 1000,
	}
}

// Validate checks that the limits are internally consistent.
func (l Limits) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	return nil
}

// limits is consulted by entity setters. The manager installs the configured
// limits once at startup.
var limits = DefaultLimits()

// SetLimits replaces the limits used by entity validation.
func SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	limits = l
	return nil
}

func checkID(field string, id int64) error {
	if id <= 0 {
		return invalid(ErrInvalidID, field, "must be positive, got %d", id)
	}
	return nil
}

func checkText(kind error, field, value string, min, max int) error {
	tag := fmt.Sprintf("min=%d,max=%d", min, max)
	if min > 0 {
		tag = "required," + tag
	}
	if err := validate.Var(value, tag); err != nil {
		return invalid(kind, field, "length must be between %d and %d", min, max)
	}
	if min > 0 && strings.TrimSpace(value) == "" {
		return invalid(kind, field, "must not be blank")
	}
	return nil
}

func checkEmail(email string) error {
	if err := validate.Var(email, fmt.Sprintf("required,email,max=%d", limits.EmailMax)); err != nil {
		return invalid(ErrInvalidEmail, "email", "%q is not a valid address", email)
	}
	return nil
}
