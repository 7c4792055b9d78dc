package library

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Entity carries the soft-delete flag shared by every stored record.
type Entity struct {
	deleted bool
}

// Deleted reports whether the record is soft deleted.
func (e *Entity) Deleted() bool { return e.deleted }

func (e *Entity) setDeleted(deleted bool) { e.deleted = deleted }

// UserType decides how many rentals a user may hold at once.
type UserType string

const (
	UserTypeAdmin      UserType = "ADMIN"
	UserTypeStaff      UserType = "STAFF"
	UserTypePatron     UserType = "PATRON"
	UserTypeStudent    UserType = "STUDENT"
	UserTypeTeacher    UserType = "TEACHER"
	UserTypeResearcher UserType = "RESEARCHER"
)

var defaultAllowedRentals = map[UserType]int{
	UserTypeAdmin:      10,
	UserTypeStaff:      10,
	UserTypePatron:     3,
	UserTypeStudent:    5,
	UserTypeTeacher:    10,
	UserTypeResearcher: 20,
}

// DefaultAllowedRentals returns the rental allowance of t.
func DefaultAllowedRentals(t UserType) (int, error) {
	n, ok := defaultAllowedRentals[t]
	if !ok {
		return 0, invalid(ErrInvalidType, "userType", "unknown user type %q", t)
	}
	return n, nil
}

// ParseUserType accepts the enum name in any case.
func ParseUserType(s string) (UserType, error) {
	t := UserType(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := DefaultAllowedRentals(t); err != nil {
		return "", err
	}
	return t, nil
}

// bcrypt cost used for new passwords; tests lower it.
var passwordCost = bcrypt.DefaultCost

// User is a library account.
type User struct {
	Entity

	id             int64
	username       string
	passwordHash   string
	email          string
	userType       UserType
	allowedRentals int
	currentRentals int
	lateFee        decimal.Decimal
}

// UserRecord is the stored form of a User.
type UserRecord struct {
	ID             int64
	Username       string
	PasswordHash   string
	Email          string
	Type           UserType
	AllowedRentals int
	CurrentRentals int
	LateFee        decimal.Decimal
	AllowedToRent  bool
	Deleted        bool
}

// NewUser builds a user that has not been stored yet.
func NewUser(username, password, email string, userType UserType) (*User, error) {
	u := &User{lateFee: decimal.Zero}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	if err := u.SetEmail(email); err != nil {
		return nil, err
	}
	if err := u.SetType(userType); err != nil {
		return nil, err
	}
	return u, nil
}

// NewUserFromRecord rebuilds a stored user, validating every field.
func NewUserFromRecord(rec UserRecord) (*User, error) {
	u := &User{lateFee: decimal.Zero}
	if err := u.SetID(rec.ID); err != nil {
		return nil, err
	}
	if err := u.SetUsername(rec.Username); err != nil {
		return nil, err
	}
	if err := u.SetPasswordHash(rec.PasswordHash); err != nil {
		return nil, err
	}
	if err := u.SetEmail(rec.Email); err != nil {
		return nil, err
	}
	if _, err := DefaultAllowedRentals(rec.Type); err != nil {
		return nil, err
	}
	if rec.AllowedRentals < 0 {
		return nil, invalid(ErrInvalidRentalCount, "allowedRentals", "must not be negative, got %d", rec.AllowedRentals)
	}
	u.userType = rec.Type
	u.allowedRentals = rec.AllowedRentals
	if err := u.SetCurrentRentals(rec.CurrentRentals); err != nil {
		return nil, err
	}
	if err := u.SetLateFee(rec.LateFee); err != nil {
		return nil, err
	}
	u.deleted = rec.Deleted
	if err := u.SetAllowedToRent(rec.AllowedToRent); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) ID() int64                { return u.id }
func (u *User) Username() string         { return u.username }
func (u *User) PasswordHash() string     { return u.passwordHash }
func (u *User) Email() string            { return u.email }
func (u *User) Type() UserType           { return u.userType }
func (u *User) AllowedRentals() int      { return u.allowedRentals }
func (u *User) CurrentRentals() int      { return u.currentRentals }
func (u *User) LateFee() decimal.Decimal { return u.lateFee }
func (u *User) Record() UserRecord       { return u.record() }
func (u *User) String() string           { return fmt.Sprintf("%s (#%d)", u.username, u.id) }
func (u *User) clone() *User             { c := *u; return &c }

// AllowedToRent is derived: an active user with no outstanding fee and a free
// rental slot.
func (u *User) AllowedToRent() bool {
	return !u.deleted && u.lateFee.IsZero() && u.currentRentals < u.allowedRentals
}

// validate checks the cross-field invariants after a mutation.
func (u *User) validate() error {
	if u.allowedRentals < 0 {
		return invalid(ErrInvalidRentalCount, "allowedRentals", "must not be negative")
	}
	if u.currentRentals < 0 || u.currentRentals > u.allowedRentals {
		return invalid(ErrInvalidRentalCount, "currentRentals", "%d outside 0..%d", u.currentRentals, u.allowedRentals)
	}
	if u.lateFee.IsNegative() {
		return invalid(ErrInvalidLateFee, "lateFee", "must not be negative")
	}
	return nil
}

func (u *User) SetID(id int64) error {
	if err := checkID("userID", id); err != nil {
		return err
	}
	u.id = id
	return nil
}

func (u *User) SetUsername(name string) error {
	if err := checkText(ErrInvalidName, "username", name, limits.UsernameMin, limits.UsernameMax); err != nil {
		return err
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return invalid(ErrInvalidName, "username", "must not contain whitespace")
	}
	u.username = name
	return nil
}

// SetPassword validates the plaintext and stores its bcrypt hash.
func (u *User) SetPassword(password string) error {
	if err := checkText(ErrInvalidPassword, "password", password, limits.PasswordMin, limits.PasswordMax); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return invalid(ErrInvalidPassword, "password", "%v", err)
	}
	u.passwordHash = string(hash)
	return nil
}

func (u *User) SetPasswordHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return invalid(ErrInvalidPassword, "password", "stored hash is malformed")
	}
	u.passwordHash = hash
	return nil
}

// CheckPassword compares password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) == nil
}

func (u *User) SetEmail(email string) error {
	if err := checkEmail(email); err != nil {
		return err
	}
	u.email = email
	return nil
}

// SetType changes the user type and resets the allowance to the type default.
func (u *User) SetType(t UserType) error {
	allowed, err := DefaultAllowedRentals(t)
	if err != nil {
		return err
	}
	if u.currentRentals > allowed {
		return invalid(ErrInvalidRentalCount, "userType", "%s allows %d rentals but %d are held", t, allowed, u.currentRentals)
	}
	u.userType = t
	u.allowedRentals = allowed
	return nil
}

func (u *User) SetCurrentRentals(n int) error {
	prev := u.currentRentals
	u.currentRentals = n
	if err := u.validate(); err != nil {
		u.currentRentals = prev
		return err
	}
	return nil
}

func (u *User) SetLateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return invalid(ErrInvalidLateFee, "lateFee", "must not be negative, got %s", fee)
	}
	u.lateFee = fee
	return nil
}

// SetAllowedToRent only accepts the value the other fields already imply.
func (u *User) SetAllowedToRent(allowed bool) error {
	if allowed != u.AllowedToRent() {
		return invalid(ErrInvalidRentalStatusChange, "allowedToRent",
			"cannot be %t (deleted=%t lateFee=%s rentals=%d/%d)",
			allowed, u.deleted, u.lateFee, u.currentRentals, u.allowedRentals)
	}
	return nil
}

func (u *User) record() UserRecord {
	return UserRecord{
		ID:             u.id,
		Username:       u.username,
		PasswordHash:   u.passwordHash,
		Email:          u.email,
		Type:           u.userType,
		AllowedRentals: u.allowedRentals,
		CurrentRentals: u.currentRentals,
		LateFee:        u.lateFee,
		AllowedToRent:  u.AllowedToRent(),
		Deleted:        u.deleted,
	}
}
