package library

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// handler is the state every entity handler shares.
type handler struct {
	db     *Database
	index  *Index
	logger *slog.Logger
}

func newHandler(db *Database, index *Index) handler {
	return handler{db: db, index: index, logger: slog.Default()}
}

// SetLogger replaces the logger; nil restores slog.Default().
func (h *handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h.logger = logger
}

// infraFailure logs persistence failures once, where they are first seen by a
// handler, and passes every error through unchanged.
func (h *handler) infraFailure(op string, err error) error {
	if errors.Is(err, ErrInfrastructure) {
		h.logger.Error("persistence failure", "op", op, "err", err)
	}
	return err
}

// UserHandler manages accounts and keeps the username/email index in sync.
type UserHandler struct {
	handler
}

func NewUserHandler(db *Database, index *Index) *UserHandler {
	return &UserHandler{handler: newHandler(db, index)}
}

// UserUpdate lists the fields to change; nil fields are left alone.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
	Type     *UserType
}

func (h *UserHandler) CreateUser(username, password, email string, userType UserType) (*User, error) {
	u, err := NewUser(username, password, email, userType)
	if err != nil {
		return nil, err
	}
	if h.index.UsernameTaken(u.Username()) {
		return nil, invalid(ErrNotUnique, "username", "%q is already taken", u.Username())
	}
	if h.index.EmailTaken(u.Email()) {
		return nil, invalid(ErrNotUnique, "email", "%q is already registered", u.Email())
	}

	id, err := h.db.InsertUser(u.record())
	if err != nil {
		return nil, h.infraFailure("create user", err)
	}
	if err := u.SetID(id); err != nil {
		return nil, err
	}
	h.index.RegisterUser(u.Username(), u.Email())
	h.logger.Info("user created", "user_id", id, "username", u.Username(), "type", u.Type())
	return u, nil
}

func (h *UserHandler) load(rec UserRecord, err error) (*User, error) {
	if err != nil {
		return nil, h.infraFailure("get user", err)
	}
	return NewUserFromRecord(rec)
}

func (h *UserHandler) GetUser(id int64, mode LookupMode) (*User, error) {
	if err := checkID("userID", id); err != nil {
		return nil, err
	}
	return h.load(h.db.GetUser(id, mode))
}

func (h *UserHandler) GetUserByUsername(username string, mode LookupMode) (*User, error) {
	return h.load(h.db.GetUserByUsername(username, mode))
}

func (h *UserHandler) GetUserByEmail(email string, mode LookupMode) (*User, error) {
	return h.load(h.db.GetUserByEmail(email, mode))
}

// ListUsers returns users ordered by id.
func (h *UserHandler) ListUsers(mode LookupMode) ([]*User, error) {
	recs, err := h.db.ListUsers(mode)
	if err != nil {
		return nil, h.infraFailure("list users", err)
	}
	users := make([]*User, 0, len(recs))
	for _, rec := range recs {
		u, err := NewUserFromRecord(rec)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// UpdateUser applies upd to an active user.
func (h *UserHandler) UpdateUser(id int64, upd UserUpdate) (*User, error) {
	current, err := h.GetUser(id, ActiveOnly)
	if err != nil {
		return nil, err
	}
	u := current.clone()

	if upd.Username != nil {
		if err := u.SetUsername(*upd.Username); err != nil {
			return nil, err
		}
		if u.Username() != current.Username() && h.index.UsernameTaken(u.Username()) {
			return nil, invalid(ErrNotUnique, "username", "%q is already taken", u.Username())
		}
	}
	if upd.Email != nil {
		if err := u.SetEmail(*upd.Email); err != nil {
			return nil, err
		}
		if emailKey(u.Email()) != emailKey(current.Email()) && h.index.EmailTaken(u.Email()) {
			return nil, invalid(ErrNotUnique, "email", "%q is already registered", u.Email())
		}
	}
	if upd.Password != nil {
		if err := u.SetPassword(*upd.Password); err != nil {
			return nil, err
		}
	}
	if upd.Type != nil {
		if err := u.SetType(*upd.Type); err != nil {
			return nil, err
		}
	}

	if err := h.db.UpdateUser(u.record()); err != nil {
		return nil, h.infraFailure("update user", err)
	}
	h.index.RenameUser(current.Username(), current.Email(), u.Username(), u.Email())
	return u, nil
}

// Authenticate returns the active user whose credentials match.
func (h *UserHandler) Authenticate(username, password string) (*User, error) {
	u, err := h.GetUserByUsername(username, ActiveOnly)
	if errors.Is(err, ErrEntityNotFound) {
		return nil, invalid(ErrInvalidPassword, "password", "unknown user or wrong password")
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, invalid(ErrInvalidPassword, "password", "unknown user or wrong password")
	}
	return u, nil
}

// PayLateFee reduces the outstanding fee of a user by amount.
func (h *UserHandler) PayLateFee(id int64, amount decimal.Decimal) (*User, error) {
	current, err := h.GetUser(id, IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() || amount.GreaterThan(current.LateFee()) {
		return nil, invalid(ErrInvalidLateFee, "payment", "%s must be within 0..%s", amount, current.LateFee())
	}
	u := current.clone()
	if err := u.SetLateFee(current.LateFee().Sub(amount)); err != nil {
		return nil, err
	}
	if err := h.db.UpdateUser(u.record()); err != nil {
		return nil, h.infraFailure("pay late fee", err)
	}
	h.logger.Info("late fee paid", "user_id", id, "amount", amount.StringFixed(2), "remaining", u.LateFee().StringFixed(2))
	return u, nil
}

func (h *UserHandler) setDeleted(id int64, deleted bool) (*User, error) {
	from := ActiveOnly
	if !deleted {
		from = DeletedOnly
	}
	current, err := h.GetUser(id, from)
	if err != nil {
		return nil, err
	}
	u := current.clone()
	u.setDeleted(deleted)
	if err := h.db.UpdateUser(u.record()); err != nil {
		return nil, h.infraFailure("update user", err)
	}
	return u, nil
}

// SoftDeleteUser hides the user and blocks further rentals. The username and
// email stay reserved.
func (h *UserHandler) SoftDeleteUser(id int64) (*User, error) { return h.setDeleted(id, true) }

// RecoverUser undoes SoftDeleteUser.
func (h *UserHandler) RecoverUser(id int64) (*User, error) { return h.setDeleted(id, false) }

// HardDeleteUser removes the user and their rental history. Users still holding
// items cannot be removed.
func (h *UserHandler) HardDeleteUser(id int64) error {
	u, err := h.GetUser(id, IncludeDeleted)
	if err != nil {
		return err
	}
	open, err := h.db.CountOpenRentals("user_id", id)
	if err != nil {
		return h.infraFailure("hard delete user", err)
	}
	if open > 0 || u.CurrentRentals() > 0 {
		return fmt.Errorf("%w: user %d still holds %d item(s)", ErrDeleteNotAllowed, id, max(open, u.CurrentRentals()))
	}
	if err := h.db.DeleteUser(id); err != nil {
		return h.infraFailure("hard delete user", err)
	}
	h.index.UnregisterUser(u.Username(), u.Email())
	h.logger.Info("user removed", "user_id", id, "username", u.Username())
	return nil
}
