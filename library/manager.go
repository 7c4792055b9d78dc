package library

import (
	"fmt"
	"log/slog"
	"time"
)

// LibraryManager wires the database, the index and the handlers together,
// keeping CLI code simple.
type LibraryManager struct {
	db    *Database
	index *Index

	Users           *UserHandler
	Items           *ItemHandler
	Authors         *AuthorHandler
	Classifications *ClassificationHandler
	Rentals         *RentalHandler
}

// NewLibraryManager opens (or creates) the SQLite database at cfg.DBPath and
// loads the index from it.
func NewLibraryManager(cfg Config) (*LibraryManager, error) {
	if err := SetLimits(cfg.Limits); err != nil {
		return nil, err
	}
	db, err := NewDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	index := NewIndex()
	if err := index.Rebuild(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}
	return &LibraryManager{
		db:              db,
		index:           index,
		Users:           NewUserHandler(db, index),
		Items:           NewItemHandler(db, index),
		Authors:         NewAuthorHandler(db, index),
		Classifications: NewClassificationHandler(db, index),
		Rentals:         NewRentalHandler(db, index, cfg.LateFeePerDay),
	}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Index exposes the availability bookkeeping, mainly for reporting.
func (lm *LibraryManager) Index() *Index { return lm.index }

// SetLogger hands logger to every handler.
func (lm *LibraryManager) SetLogger(logger *slog.Logger) {
	lm.Users.SetLogger(logger)
	lm.Items.SetLogger(logger)
	lm.Authors.SetLogger(logger)
	lm.Classifications.SetLogger(logger)
	lm.Rentals.SetLogger(logger)
}

// SetClock replaces the clock of the rental flows.
func (lm *LibraryManager) SetClock(now func() time.Time) { lm.Rentals.SetClock(now) }

// ------------------ Circulation ------------------

// RentItem lends the item with the given barcode to username.
func (lm *LibraryManager) RentItem(username, barcode string) (*Rental, error) {
	u, err := lm.Users.GetUserByUsername(username, ActiveOnly)
	if err != nil {
		return nil, err
	}
	it, err := lm.Items.GetItemByBarcode(barcode, ActiveOnly)
	if err != nil {
		return nil, err
	}
	return lm.Rentals.CreateRental(u.ID(), it.ID())
}

// ReturnItem closes the open rental of the item with the given barcode.
func (lm *LibraryManager) ReturnItem(barcode string) (*Rental, error) {
	it, err := lm.Items.GetItemByBarcode(barcode, IncludeDeleted)
	if err != nil {
		return nil, err
	}
	rentals, err := lm.Rentals.FindRentals(RentalFilter{ItemID: it.ID(), OpenOnly: true}, IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if len(rentals) == 0 {
		return nil, notFound("no open rental for barcode %q", barcode)
	}
	return lm.Rentals.ReturnRental(rentals[0].ID())
}

// ------------------ Utilities ------------------

// PrettyItem formats an item for lists.
func PrettyItem(it *Item) string {
	return fmt.Sprintf("%-5d %-30s %-25s %-18s %-12s %-10t", it.ID(), truncate(it.Title(), 30),
		truncate(it.AuthorName(), 25), it.Type(), truncate(it.Barcode(), 12), it.Available())
}

// PrettyRental formats a rental for lists, with its status at now.
func PrettyRental(r *Rental, now time.Time) string {
	return fmt.Sprintf("%-5d %-20s %-30s %-19s %-19s %-9s %s", r.ID(), truncate(r.Username(), 20),
		truncate(r.ItemTitle(), 30), r.RentalDate().Format(time.DateTime), r.RentalDueDate().Format(time.DateTime),
		r.Status(now), r.LateFee().StringFixed(2))
}

func truncate(s string, maxLen int) string {
	rs := []rune(s)
	if len(rs) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(rs[:maxLen])
	}
	return string(rs[:maxLen-3]) + "..."
}
