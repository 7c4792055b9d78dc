package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RentalHandler runs the rent and return flows. Both touch the rental, the item
// and the user in one transaction; the index follows after the commit.
type RentalHandler struct {
	handler

	lateFeePerDay decimal.Decimal
	now           func() time.Time
}

func NewRentalHandler(db *Database, index *Index, lateFeePerDay decimal.Decimal) *RentalHandler {
	return &RentalHandler{
		handler:       newHandler(db, index),
		lateFeePerDay: lateFeePerDay,
		now:           timeNow,
	}
}

// SetClock replaces the clock used for rental, return and overdue times.
func (h *RentalHandler) SetClock(now func() time.Time) {
	if now == nil {
		now = timeNow
	}
	h.now = now
}

// Now is the handler's current time.
func (h *RentalHandler) Now() time.Time { return h.now() }

// LateFeePerDay is charged for every started day past the due date.
func (h *RentalHandler) LateFeePerDay() decimal.Decimal { return h.lateFeePerDay }

// CreateRental lends itemID to userID.
//
// The user and the item must be active. The item's title needs an available copy
// in the index and the item itself must be on the shelf, otherwise the result is
// ErrEntityNotFound. Users who may not rent, and items that are never lent out,
// yield ErrRentalNotAllowed. Nothing is changed on failure.
func (h *RentalHandler) CreateRental(userID, itemID int64) (*Rental, error) {
	if err := checkID("userID", userID); err != nil {
		return nil, err
	}
	if err := checkID("itemID", itemID); err != nil {
		return nil, err
	}

	userRec, err := h.db.GetUser(userID, ActiveOnly)
	if err != nil {
		return nil, h.infraFailure("get user", err)
	}
	user, err := NewUserFromRecord(userRec)
	if err != nil {
		return nil, err
	}
	itemRec, err := h.db.GetItem(itemID, ActiveOnly)
	if err != nil {
		return nil, h.infraFailure("get item", err)
	}
	item, err := NewItemFromRecord(itemRec)
	if err != nil {
		return nil, err
	}

	if h.index.AvailableCopies(item.Title()) == 0 {
		return nil, notFound("no available copy of %q", item.Title())
	}
	if !item.Available() {
		return nil, notFound("item %d (%q) is rented out", item.ID(), item.Title())
	}
	if !user.AllowedToRent() {
		h.logger.Warn("rental refused", "user_id", userID, "item_id", itemID,
			"rentals", user.CurrentRentals(), "allowed", user.AllowedRentals(), "late_fee", user.LateFee().StringFixed(2))
		return nil, fmt.Errorf("%w: %s has %d/%d rentals and owes %s", ErrRentalNotAllowed,
			user.Username(), user.CurrentRentals(), user.AllowedRentals(), user.LateFee().StringFixed(2))
	}
	if item.AllowedRentalDays() == 0 {
		h.logger.Warn("rental refused", "user_id", userID, "item_id", itemID, "item_type", item.Type())
		return nil, fmt.Errorf("%w: %s items cannot be taken out", ErrRentalNotAllowed, item.Type())
	}

	r, err := newRentalAt(userID, itemID, h.now())
	if err != nil {
		return nil, err
	}
	if err := r.SetRentalDueDate(dueDateFor(r.RentalDate(), item.AllowedRentalDays())); err != nil {
		return nil, err
	}
	if err := r.SetUsername(user.Username()); err != nil {
		return nil, err
	}
	if err := r.SetItemTitle(item.Title()); err != nil {
		return nil, err
	}
	if err := r.SetItemType(item.Type()); err != nil {
		return nil, err
	}
	if err := r.SetReceipt(receipt(r, item)); err != nil {
		return nil, err
	}

	updatedUser := user.clone()
	if err := updatedUser.SetCurrentRentals(user.CurrentRentals() + 1); err != nil {
		return nil, err
	}

	var id int64
	err = h.db.Tx(func(tx *Tx) error {
		var err error
		if id, err = tx.InsertRental(r.record()); err != nil {
			return err
		}
		// Fails with ErrEntityNotFound if someone else took the item meanwhile.
		if err := tx.SetItemAvailable(itemID, false); err != nil {
			return err
		}
		return tx.UpdateUser(updatedUser.record())
	})
	if err != nil {
		return nil, h.infraFailure("create rental", err)
	}
	if err := r.SetID(id); err != nil {
		return nil, err
	}
	if err := h.index.TakeCopy(item.Title()); err != nil {
		h.resync(err)
	}

	h.logger.Info("rental created", "rental_id", id, "user_id", userID, "item_id", itemID,
		"title", item.Title(), "due", r.RentalDueDate().Format(time.DateTime))
	return r, nil
}

func receipt(r *Rental, item *Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt %s\n", uuid.NewString())
	fmt.Fprintf(&b, "Borrower: %s\n", r.Username())
	fmt.Fprintf(&b, "Item:     %s [%s] (%s)\n", item.Title(), item.Barcode(), item.Type())
	fmt.Fprintf(&b, "Rented:   %s\n", r.RentalDate().Format(time.DateTime))
	fmt.Fprintf(&b, "Due:      %s\n", r.RentalDueDate().Format(time.DateTime))
	return b.String()
}

// ReturnRental closes an open rental. A late return charges LateFeePerDay for
// every started day past the due date, and the fee is added to what the user
// owes. Soft-deleted rentals can still be returned so the copy goes back on the
// shelf.
func (h *RentalHandler) ReturnRental(rentalID int64) (*Rental, error) {
	current, err := h.GetRental(rentalID, IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if current.Returned() {
		return nil, invalid(ErrInvalidRentalStatusChange, "rentalReturnDate", "rental %d was already returned", rentalID)
	}

	userRec, err := h.db.GetUser(current.UserID(), IncludeDeleted)
	if err != nil {
		return nil, h.infraFailure("get user", err)
	}
	user, err := NewUserFromRecord(userRec)
	if err != nil {
		return nil, err
	}
	itemRec, err := h.db.GetItem(current.ItemID(), IncludeDeleted)
	if err != nil {
		return nil, h.infraFailure("get item", err)
	}

	r := current.clone()
	if err := r.SetRentalReturnDate(h.now()); err != nil {
		return nil, err
	}
	returnedAt, _ := r.RentalReturnDate()
	days := daysLate(r.RentalDueDate(), returnedAt)
	fee := h.lateFeePerDay.Mul(decimal.NewFromInt(days))
	if err := r.SetLateFee(fee); err != nil {
		return nil, err
	}

	if err := user.SetCurrentRentals(user.CurrentRentals() - 1); err != nil {
		return nil, err
	}
	if err := user.SetLateFee(user.LateFee().Add(fee)); err != nil {
		return nil, err
	}

	err = h.db.Tx(func(tx *Tx) error {
		if err := tx.UpdateRental(r.record()); err != nil {
			return err
		}
		if err := tx.SetItemAvailable(current.ItemID(), true); err != nil {
			return err
		}
		return tx.UpdateUser(user.record())
	})
	if err != nil {
		return nil, h.infraFailure("return rental", err)
	}
	if !itemRec.Deleted {
		if err := h.index.ReturnCopy(itemRec.Title); err != nil {
			h.resync(err)
		}
	}

	h.logger.Info("rental returned", "rental_id", rentalID, "user_id", user.ID(), "item_id", current.ItemID(),
		"days_late", days, "late_fee", fee.StringFixed(2))
	return r, nil
}

func (h *RentalHandler) GetRental(id int64, mode LookupMode) (*Rental, error) {
	if err := checkID("rentalID", id); err != nil {
		return nil, err
	}
	rec, err := h.db.GetRental(id, mode)
	if err != nil {
		return nil, h.infraFailure("get rental", err)
	}
	return NewRentalFromRecord(rec)
}

// FindRentals lists the rentals matching f ordered by id.
func (h *RentalHandler) FindRentals(f RentalFilter, mode LookupMode) ([]*Rental, error) {
	recs, err := h.db.FindRentals(f, mode)
	if err != nil {
		return nil, h.infraFailure("find rentals", err)
	}
	out := make([]*Rental, 0, len(recs))
	for _, rec := range recs {
		r, err := NewRentalFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (h *RentalHandler) ListRentals(mode LookupMode) ([]*Rental, error) {
	return h.FindRentals(RentalFilter{}, mode)
}

// FindRentalsByDate matches the rental timestamp to the second.
func (h *RentalHandler) FindRentalsByDate(at time.Time) ([]*Rental, error) {
	if at.IsZero() {
		return nil, invalid(ErrInvalidDate, "rentalDate", "must be set")
	}
	return h.FindRentals(RentalFilter{RentedAt: at.Truncate(time.Second)}, ActiveOnly)
}

// FindRentalsByDay returns rentals made on the calendar day of day.
func (h *RentalHandler) FindRentalsByDay(day time.Time) ([]*Rental, error) {
	if day.IsZero() {
		return nil, invalid(ErrInvalidDate, "rentalDate", "must be set")
	}
	from, to := dayBounds(day)
	return h.FindRentals(RentalFilter{RentedFrom: from, RentedTo: to}, ActiveOnly)
}

// FindRentalsDueOn returns rentals due on the calendar day of day.
func (h *RentalHandler) FindRentalsDueOn(day time.Time) ([]*Rental, error) {
	if day.IsZero() {
		return nil, invalid(ErrInvalidDate, "rentalDueDate", "must be set")
	}
	from, to := dayBounds(day)
	return h.FindRentals(RentalFilter{DueFrom: from, DueTo: to}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByUser(userID int64) ([]*Rental, error) {
	if err := checkID("userID", userID); err != nil {
		return nil, err
	}
	return h.FindRentals(RentalFilter{UserID: userID}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByItem(itemID int64) ([]*Rental, error) {
	if err := checkID("itemID", itemID); err != nil {
		return nil, err
	}
	return h.FindRentals(RentalFilter{ItemID: itemID}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByTitle(title string) ([]*Rental, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid(ErrInvalidTitle, "title", "search term is empty")
	}
	return h.FindRentals(RentalFilter{Title: title}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByAuthor(firstname, lastname string) ([]*Rental, error) {
	firstname, lastname = strings.TrimSpace(firstname), strings.TrimSpace(lastname)
	if firstname == "" && lastname == "" {
		return nil, invalid(ErrInvalidName, "author", "firstname and lastname are both empty")
	}
	return h.FindRentals(RentalFilter{AuthorFirstname: firstname, AuthorLastname: lastname}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByClassification(name string) ([]*Rental, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid(ErrInvalidName, "classification", "must not be empty")
	}
	return h.FindRentals(RentalFilter{Classification: name}, ActiveOnly)
}

func (h *RentalHandler) FindRentalsByISBN(isbn string) ([]*Rental, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, invalid(ErrInvalidISBN, "isbn", "must not be empty")
	}
	return h.FindRentals(RentalFilter{ISBN: isbn}, ActiveOnly)
}

// OverdueRentals lists unreturned rentals whose due date has passed.
func (h *RentalHandler) OverdueRentals() ([]*Rental, error) {
	return h.FindRentals(RentalFilter{OverdueAt: h.now()}, ActiveOnly)
}

func (h *RentalHandler) setDeleted(id int64, deleted bool) (*Rental, error) {
	from := ActiveOnly
	if !deleted {
		from = DeletedOnly
	}
	current, err := h.GetRental(id, from)
	if err != nil {
		return nil, err
	}
	r := current.clone()
	r.setDeleted(deleted)
	if err := h.db.UpdateRental(r.record()); err != nil {
		return nil, h.infraFailure("update rental", err)
	}
	return r, nil
}

// SoftDeleteRental hides a rental from listings. An open rental stays open and
// can still be returned after RecoverRental.
func (h *RentalHandler) SoftDeleteRental(id int64) (*Rental, error) { return h.setDeleted(id, true) }

func (h *RentalHandler) RecoverRental(id int64) (*Rental, error) { return h.setDeleted(id, false) }

// HardDeleteRental removes a returned rental. Open rentals must be returned
// first.
func (h *RentalHandler) HardDeleteRental(id int64) error {
	r, err := h.GetRental(id, IncludeDeleted)
	if err != nil {
		return err
	}
	if !r.Returned() {
		return fmt.Errorf("%w: rental %d is still open", ErrDeleteNotAllowed, id)
	}
	if err := h.db.DeleteRental(id); err != nil {
		return h.infraFailure("hard delete rental", err)
	}
	h.logger.Info("rental removed", "rental_id", id)
	return nil
}
