package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DueHour is the local hour of day every due date is pinned to.
const DueHour = 20

// timeNow is the wall clock the entities compare against.
var timeNow = time.Now

// RentalStatus is derived from a rental and the current time; it is never stored.
type RentalStatus string

const (
	RentalCreated  RentalStatus = "CREATED"
	RentalOnTime   RentalStatus = "ON_TIME"
	RentalOverdue  RentalStatus = "OVERDUE"
	RentalReturned RentalStatus = "RETURNED"
	RentalDeleted  RentalStatus = "DELETED"
)

// Rental links one user to one item for a period.
type Rental struct {
	Entity

	id         int64
	userID     int64
	itemID     int64
	rentalDate time.Time
	dueDate    time.Time
	returnDate *time.Time
	lateFee    decimal.Decimal
	receipt    string

	username  string
	itemTitle string
	itemType  ItemType
}

// RentalRecord is the stored form of a Rental joined with its user and item.
type RentalRecord struct {
	ID         int64
	UserID     int64
	ItemID     int64
	RentalDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	LateFee    decimal.Decimal
	Receipt    string
	Username   string
	ItemTitle  string
	ItemType   ItemType
	Deleted    bool
}

// NewRental starts a rental dated now. The due date and the copied user and item
// fields stay empty until the rental handler fills them in.
func NewRental(userID, itemID int64) (*Rental, error) {
	return newRentalAt(userID, itemID, timeNow())
}

func newRentalAt(userID, itemID int64, at time.Time) (*Rental, error) {
	r := &Rental{lateFee: decimal.Zero}
	if err := r.SetUserID(userID); err != nil {
		return nil, err
	}
	if err := r.SetItemID(itemID); err != nil {
		return nil, err
	}
	if err := r.SetRentalDate(at); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRentalFromRecord rebuilds a stored rental, validating every field.
func NewRentalFromRecord(rec RentalRecord) (*Rental, error) {
	r, err := newRentalAt(rec.UserID, rec.ItemID, rec.RentalDate)
	if err != nil {
		return nil, err
	}
	if err := r.SetID(rec.ID); err != nil {
		return nil, err
	}
	if err := r.SetRentalDueDate(rec.DueDate); err != nil {
		return nil, err
	}
	if rec.ReturnDate != nil {
		if err := r.SetRentalReturnDate(*rec.ReturnDate); err != nil {
			return nil, err
		}
	}
	if err := r.SetLateFee(rec.LateFee); err != nil {
		return nil, err
	}
	if err := r.SetReceipt(rec.Receipt); err != nil {
		return nil, err
	}
	if err := r.SetUsername(rec.Username); err != nil {
		return nil, err
	}
	if err := r.SetItemTitle(rec.ItemTitle); err != nil {
		return nil, err
	}
	if err := r.SetItemType(rec.ItemType); err != nil {
		return nil, err
	}
	r.deleted = rec.Deleted
	return r, nil
}

func (r *Rental) ID() int64                { return r.id }
func (r *Rental) UserID() int64            { return r.userID }
func (r *Rental) ItemID() int64            { return r.itemID }
func (r *Rental) RentalDate() time.Time    { return r.rentalDate }
func (r *Rental) RentalDueDate() time.Time { return r.dueDate }
func (r *Rental) LateFee() decimal.Decimal { return r.lateFee }
func (r *Rental) Receipt() string          { return r.receipt }
func (r *Rental) Username() string         { return r.username }
func (r *Rental) ItemTitle() string        { return r.itemTitle }
func (r *Rental) ItemType() ItemType       { return r.itemType }
func (r *Rental) Returned() bool           { return r.returnDate != nil }

// RentalReturnDate returns the return date and whether the rental was returned.
func (r *Rental) RentalReturnDate() (time.Time, bool) {
	if r.returnDate == nil {
		return time.Time{}, false
	}
	return *r.returnDate, true
}

// Status derives the lifecycle state at now.
func (r *Rental) Status(now time.Time) RentalStatus {
	switch {
	case r.deleted:
		return RentalDeleted
	case r.returnDate != nil:
		return RentalReturned
	case r.dueDate.IsZero():
		return RentalCreated
	case now.After(r.dueDate):
		return RentalOverdue
	default:
		return RentalOnTime
	}
}

// Overdue reports whether the rental is out past its due date at now.
func (r *Rental) Overdue(now time.Time) bool {
	return r.returnDate == nil && !r.dueDate.IsZero() && now.After(r.dueDate)
}

func (r *Rental) SetID(id int64) error {
	if err := checkID("rentalID", id); err != nil {
		return err
	}
	r.id = id
	return nil
}

func (r *Rental) SetUserID(id int64) error {
	if err := checkID("userID", id); err != nil {
		return err
	}
	r.userID = id
	return nil
}

func (r *Rental) SetItemID(id int64) error {
	if err := checkID("itemID", id); err != nil {
		return err
	}
	r.itemID = id
	return nil
}

// SetRentalDate truncates to seconds and refuses dates in the future.
func (r *Rental) SetRentalDate(at time.Time) error {
	if at.IsZero() {
		return invalid(ErrInvalidDate, "rentalDate", "must be set")
	}
	at = at.In(time.Local).Truncate(time.Second)
	if at.After(timeNow()) {
		return invalid(ErrInvalidDate, "rentalDate", "%s is in the future", at.Format(time.DateTime))
	}
	r.rentalDate = at
	return nil
}

// SetRentalDueDate pins the due date to DueHour:00:00 of its calendar day.
func (r *Rental) SetRentalDueDate(due time.Time) error {
	if due.IsZero() {
		return invalid(ErrInvalidDate, "rentalDueDate", "must be set")
	}
	due = normalizeDueDate(due)
	if due.Before(r.rentalDate) {
		return invalid(ErrInvalidDate, "rentalDueDate", "%s is before the rental date", due.Format(time.DateTime))
	}
	r.dueDate = due
	return nil
}

func (r *Rental) SetRentalReturnDate(at time.Time) error {
	if at.IsZero() {
		return invalid(ErrInvalidDate, "rentalReturnDate", "must be set")
	}
	at = at.In(time.Local).Truncate(time.Second)
	if at.Before(r.rentalDate) {
		return invalid(ErrInvalidDate, "rentalReturnDate", "%s is before the rental date", at.Format(time.DateTime))
	}
	r.returnDate = &at
	return nil
}

func (r *Rental) SetLateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return invalid(ErrInvalidLateFee, "lateFee", "must not be negative, got %s", fee)
	}
	r.lateFee = fee
	return nil
}

func (r *Rental) SetReceipt(receipt string) error {
	if strings.TrimSpace(receipt) == "" {
		return invalid(ErrInvalidReceipt, "receipt", "must not be empty")
	}
	r.receipt = receipt
	return nil
}

func (r *Rental) SetUsername(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(ErrInvalidName, "username", "must not be empty")
	}
	r.username = name
	return nil
}

func (r *Rental) SetItemTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid(ErrInvalidTitle, "itemTitle", "must not be empty")
	}
	r.itemTitle = title
	return nil
}

func (r *Rental) SetItemType(t ItemType) error {
	if _, err := DefaultAllowedRentalDays(t); err != nil {
		return err
	}
	r.itemType = t
	return nil
}

func (r *Rental) clone() *Rental {
	c := *r
	if r.returnDate != nil {
		d := *r.returnDate
		c.returnDate = &d
	}
	return &c
}

func (r *Rental) String() string {
	return fmt.Sprintf("rental #%d: %s -> %s", r.id, r.username, r.itemTitle)
}

func (r *Rental) record() RentalRecord {
	return RentalRecord{
		ID:         r.id,
		UserID:     r.userID,
		ItemID:     r.itemID,
		RentalDate: r.rentalDate,
		DueDate:    r.dueDate,
		ReturnDate: r.returnDate,
		LateFee:    r.lateFee,
		Receipt:    r.receipt,
		Username:   r.username,
		ItemTitle:  r.itemTitle,
		ItemType:   r.itemType,
		Deleted:    r.deleted,
	}
}

// normalizeDueDate keeps the local calendar day of t and sets the clock to
// DueHour. Stored times come back in Local, so due dates are pinned there too.
func normalizeDueDate(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, DueHour, 0, 0, 0, time.Local)
}

// dueDateFor is the due date of a rental starting at start for days days.
func dueDateFor(start time.Time, days int) time.Time {
	return normalizeDueDate(start.AddDate(0, 0, days))
}

// dayBounds returns [start of day, start of next day) of t's local day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(time.Local).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return start, start.AddDate(0, 0, 1)
}

// daysLate counts started days between due and returned.
func daysLate(due, returned time.Time) int64 {
	if !returned.After(due) {
		return 0
	}
	late := returned.Sub(due)
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days
}
