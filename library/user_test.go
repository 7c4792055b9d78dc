package library

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derivedAllowedToRent(u *User) bool {
	return !u.Deleted() && u.LateFee().IsZero() && u.CurrentRentals() < u.AllowedRentals()
}

func TestNewUserDefaults(t *testing.T) {
	u, err := NewUser("paul", "secret1", "paul@arrakis.example", UserTypePatron)
	require.NoError(t, err)

	assert.Equal(t, 3, u.AllowedRentals())
	assert.Equal(t, 0, u.CurrentRentals())
	assert.True(t, u.LateFee().IsZero())
	assert.True(t, u.AllowedToRent())
	assert.NotEqual(t, "secret1", u.PasswordHash())
	assert.True(t, u.CheckPassword("secret1"))
	assert.False(t, u.CheckPassword("secret2"))
}

func TestNewUserRejectsShortUsername(t *testing.T) {
	_, err := NewUser("ab", "secret1", "ab@example.com", UserTypePatron)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.NotErrorIs(t, err, ErrInfrastructure)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "username", ve.Field)
}

func TestNewUserValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		email    string
		userType UserType
		kind     error
	}{
		{"long username", "abcdefghijklmnopqrstuvwxyz", "secret1", "a@example.com", UserTypePatron, ErrInvalidName},
		{"whitespace username", "paul atreides", "secret1", "a@example.com", UserTypePatron, ErrInvalidName},
		{"short password", "paul", "abc", "a@example.com", UserTypePatron, ErrInvalidPassword},
		{"bad email", "paul", "secret1", "not-an-email", UserTypePatron, ErrInvalidEmail},
		{"unknown type", "paul", "secret1", "a@example.com", UserType("PIRATE"), ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.username, tt.password, tt.email, tt.userType)
			assert.ErrorIs(t, err, tt.kind)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestUserAllowedToRentInvariant(t *testing.T) {
	u, err := NewUser("chani", "secret1", "chani@example.com", UserTypeStudent)
	require.NoError(t, err)

	steps := []func() error{
		func() error { return u.SetCurrentRentals(2) },
		func() error { return u.SetCurrentRentals(5) },
		func() error { return u.SetCurrentRentals(6) },
		func() error { return u.SetCurrentRentals(-1) },
		func() error { return u.SetCurrentRentals(1) },
		func() error { return u.SetLateFee(decimal.NewFromInt(5)) },
		func() error { return u.SetLateFee(decimal.NewFromInt(-1)) },
		func() error { return u.SetLateFee(decimal.Zero) },
		func() error { u.setDeleted(true); return nil },
		func() error { u.setDeleted(false); return nil },
		func() error { return u.SetType(UserTypePatron) },
		func() error { return u.SetType(UserTypeResearcher) },
		func() error { return u.SetAllowedToRent(false) },
		func() error { return u.SetAllowedToRent(true) },
	}
	for i, step := range steps {
		_ = step()
		require.Equal(t, derivedAllowedToRent(u), u.AllowedToRent(), "after step %d", i)
		require.GreaterOrEqual(t, u.CurrentRentals(), 0)
		require.LessOrEqual(t, u.CurrentRentals(), u.AllowedRentals())
	}
}

func TestUserSetCurrentRentalsOutOfRange(t *testing.T) {
	u, err := NewUser("stilgar", "secret1", "stilgar@example.com", UserTypePatron)
	require.NoError(t, err)
	require.NoError(t, u.SetCurrentRentals(3))
	assert.False(t, u.AllowedToRent())

	err = u.SetCurrentRentals(4)
	assert.ErrorIs(t, err, ErrInvalidRentalCount)
	assert.Equal(t, 3, u.CurrentRentals(), "failed setter must not change state")
}

func TestUserSetTypeBelowHeldRentals(t *testing.T) {
	u, err := NewUser("liet", "secret1", "liet@example.com", UserTypeResearcher)
	require.NoError(t, err)
	require.NoError(t, u.SetCurrentRentals(4))

	err = u.SetType(UserTypePatron)
	assert.ErrorIs(t, err, ErrInvalidRentalCount)
	assert.Equal(t, UserTypeResearcher, u.Type())
	assert.Equal(t, 20, u.AllowedRentals())

	require.NoError(t, u.SetType(UserTypeStudent))
	assert.Equal(t, 5, u.AllowedRentals())
}

func TestUserSetAllowedToRentContradiction(t *testing.T) {
	u, err := NewUser("gurney", "secret1", "gurney@example.com", UserTypeStaff)
	require.NoError(t, err)

	require.NoError(t, u.SetAllowedToRent(true))
	assert.ErrorIs(t, u.SetAllowedToRent(false), ErrInvalidRentalStatusChange)

	require.NoError(t, u.SetLateFee(decimal.RequireFromString("0.50")))
	assert.ErrorIs(t, u.SetAllowedToRent(true), ErrInvalidRentalStatusChange)
	require.NoError(t, u.SetAllowedToRent(false))
}

func TestNewUserFromRecordChecksStoredFlag(t *testing.T) {
	u, err := NewUser("jessica", "secret1", "jessica@example.com", UserTypeTeacher)
	require.NoError(t, err)
	require.NoError(t, u.SetID(7))

	rec := u.record()
	back, err := NewUserFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, u.record(), back.record())

	rec.AllowedToRent = false
	_, err = NewUserFromRecord(rec)
	assert.ErrorIs(t, err, ErrInvalidRentalStatusChange)

	rec = u.record()
	rec.CurrentRentals = rec.AllowedRentals + 1
	_, err = NewUserFromRecord(rec)
	assert.ErrorIs(t, err, ErrInvalidRentalCount)
}

func TestParseUserType(t *testing.T) {
	ut, err := ParseUserType(" researcher ")
	require.NoError(t, err)
	assert.Equal(t, UserTypeResearcher, ut)

	_, err = ParseUserType("guest")
	assert.ErrorIs(t, err, ErrInvalidType)
}
