package library

import (
	"fmt"
	"strings"
)

// ItemHandler manages items and keeps the title and barcode index in sync.
type ItemHandler struct {
	handler
}

func NewItemHandler(db *Database, index *Index) *ItemHandler {
	return &ItemHandler{handler: newHandler(db, index)}
}

// ItemInput describes a new item.
type ItemInput struct {
	Title            string
	Type             ItemType
	Barcode          string
	AuthorID         int64
	ClassificationID int64
	Details          Details
}

// ItemUpdate lists the fields to change; nil fields are left alone. Details is
// required when Type changes between film and literature.
type ItemUpdate struct {
	Title             *string
	Barcode           *string
	AuthorID          *int64
	ClassificationID  *int64
	Type              *ItemType
	Details           Details
	AllowedRentalDays *int
}

// checkReferences makes sure the author and classification exist and are active.
func (h *ItemHandler) checkReferences(authorID, classificationID int64) error {
	if _, err := h.db.GetAuthor(authorID, ActiveOnly); err != nil {
		return h.infraFailure("get author", err)
	}
	if _, err := h.db.GetClassification(classificationID, ActiveOnly); err != nil {
		return h.infraFailure("get classification", err)
	}
	return nil
}

// CreateItem stores a new, available item.
func (h *ItemHandler) CreateItem(in ItemInput) (*Item, error) {
	it, err := NewItem(in.Title, in.Type, in.Barcode, in.AuthorID, in.ClassificationID, in.Details)
	if err != nil {
		return nil, err
	}
	if h.index.BarcodeTaken(it.Barcode()) {
		return nil, invalid(ErrNotUnique, "barcode", "%q is already registered", it.Barcode())
	}
	if err := h.checkReferences(it.AuthorID(), it.ClassificationID()); err != nil {
		return nil, err
	}

	var id int64
	err = h.db.Tx(func(tx *Tx) error {
		var err error
		id, err = tx.InsertItem(it.record())
		return err
	})
	if err != nil {
		return nil, h.infraFailure("create item", err)
	}
	h.index.RegisterItem(it.Title(), it.Barcode(), true)
	h.logger.Info("item created", "item_id", id, "title", it.Title(), "barcode", it.Barcode(), "type", it.Type())
	return h.GetItem(id, ActiveOnly)
}

// CreateLiterature is CreateItem for book-like items.
func (h *ItemHandler) CreateLiterature(title string, itemType ItemType, barcode string, authorID, classificationID int64, isbn string) (*Item, error) {
	return h.CreateItem(ItemInput{
		Title: title, Type: itemType, Barcode: barcode,
		AuthorID: authorID, ClassificationID: classificationID,
		Details: &Literature{ISBN: isbn},
	})
}

// CreateFilm is CreateItem for films.
func (h *ItemHandler) CreateFilm(title, barcode string, authorID, classificationID int64, film Film) (*Item, error) {
	return h.CreateItem(ItemInput{
		Title: title, Type: ItemTypeFilm, Barcode: barcode,
		AuthorID: authorID, ClassificationID: classificationID,
		Details: &film,
	})
}

func (h *ItemHandler) GetItem(id int64, mode LookupMode) (*Item, error) {
	if err := checkID("itemID", id); err != nil {
		return nil, err
	}
	rec, err := h.db.GetItem(id, mode)
	if err != nil {
		return nil, h.infraFailure("get item", err)
	}
	return NewItemFromRecord(rec)
}

func (h *ItemHandler) GetItemByBarcode(barcode string, mode LookupMode) (*Item, error) {
	rec, err := h.db.GetItemByBarcode(barcode, mode)
	if err != nil {
		return nil, h.infraFailure("get item", err)
	}
	return NewItemFromRecord(rec)
}

func (h *ItemHandler) find(f ItemFilter, mode LookupMode) ([]*Item, error) {
	recs, err := h.db.FindItems(f, mode)
	if err != nil {
		return nil, h.infraFailure("find items", err)
	}
	items := make([]*Item, 0, len(recs))
	for _, rec := range recs {
		it, err := NewItemFromRecord(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// ListItems returns items ordered by id.
func (h *ItemHandler) ListItems(mode LookupMode) ([]*Item, error) {
	return h.find(ItemFilter{}, mode)
}

// ListAvailableItems returns active items that can be rented right now.
func (h *ItemHandler) ListAvailableItems() ([]*Item, error) {
	return h.find(ItemFilter{AvailableOnly: true}, ActiveOnly)
}

// FindItemsByTitle matches title as a case-insensitive substring.
func (h *ItemHandler) FindItemsByTitle(title string) ([]*Item, error) {
	if strings.TrimSpace(title) == "" {
		return nil, invalid(ErrInvalidTitle, "title", "search term is empty")
	}
	return h.find(ItemFilter{Title: strings.TrimSpace(title)}, ActiveOnly)
}

// FindItemsByAuthor matches the given author name parts; at least one is needed.
func (h *ItemHandler) FindItemsByAuthor(firstname, lastname string) ([]*Item, error) {
	firstname, lastname = strings.TrimSpace(firstname), strings.TrimSpace(lastname)
	if firstname == "" && lastname == "" {
		return nil, invalid(ErrInvalidName, "author", "firstname and lastname are both empty")
	}
	return h.find(ItemFilter{AuthorFirstname: firstname, AuthorLastname: lastname}, ActiveOnly)
}

func (h *ItemHandler) FindItemsByClassification(name string) ([]*Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid(ErrInvalidName, "classification", "must not be empty")
	}
	return h.find(ItemFilter{Classification: strings.TrimSpace(name)}, ActiveOnly)
}

func (h *ItemHandler) FindItemsByISBN(isbn string) ([]*Item, error) {
	if strings.TrimSpace(isbn) == "" {
		return nil, invalid(ErrInvalidISBN, "isbn", "must not be empty")
	}
	return h.find(ItemFilter{ISBN: strings.TrimSpace(isbn)}, ActiveOnly)
}

func (h *ItemHandler) FindItemsByType(t ItemType) ([]*Item, error) {
	if _, err := DefaultAllowedRentalDays(t); err != nil {
		return nil, err
	}
	return h.find(ItemFilter{Type: t}, ActiveOnly)
}

// UpdateItem applies upd to an active item. Availability is never changed here.
func (h *ItemHandler) UpdateItem(id int64, upd ItemUpdate) (*Item, error) {
	current, err := h.GetItem(id, ActiveOnly)
	if err != nil {
		return nil, err
	}
	it := current.clone()

	if upd.Title != nil {
		if err := it.SetTitle(*upd.Title); err != nil {
			return nil, err
		}
	}
	if upd.Barcode != nil {
		if err := it.SetBarcode(*upd.Barcode); err != nil {
			return nil, err
		}
		if it.Barcode() != current.Barcode() && h.index.BarcodeTaken(it.Barcode()) {
			return nil, invalid(ErrNotUnique, "barcode", "%q is already registered", it.Barcode())
		}
	}
	if upd.AuthorID != nil {
		if err := it.SetAuthorID(*upd.AuthorID); err != nil {
			return nil, err
		}
	}
	if upd.ClassificationID != nil {
		if err := it.SetClassificationID(*upd.ClassificationID); err != nil {
			return nil, err
		}
	}
	switch {
	case upd.Type != nil:
		details := upd.Details
		if details == nil {
			details = current.Details()
		}
		if err := it.SetType(*upd.Type, details); err != nil {
			return nil, err
		}
	case upd.Details != nil:
		if err := it.SetDetails(upd.Details); err != nil {
			return nil, err
		}
	}
	if upd.AllowedRentalDays != nil {
		if err := it.SetAllowedRentalDays(*upd.AllowedRentalDays); err != nil {
			return nil, err
		}
	}
	if it.AuthorID() != current.AuthorID() || it.ClassificationID() != current.ClassificationID() {
		if err := h.checkReferences(it.AuthorID(), it.ClassificationID()); err != nil {
			return nil, err
		}
	}

	err = h.db.Tx(func(tx *Tx) error { return tx.UpdateItem(it.record()) })
	if err != nil {
		return nil, h.infraFailure("update item", err)
	}
	if it.Title() != current.Title() || it.Barcode() != current.Barcode() {
		h.index.RetitleItem(current.Title(), current.Barcode(), it.Title(), it.Barcode(), it.Available())
	}
	return h.GetItem(id, ActiveOnly)
}

// SoftDeleteItem hides an item from circulation. Rented items cannot be hidden.
func (h *ItemHandler) SoftDeleteItem(id int64) (*Item, error) {
	current, err := h.GetItem(id, ActiveOnly)
	if err != nil {
		return nil, err
	}
	if !current.Available() {
		return nil, fmt.Errorf("%w: item %d is rented out", ErrDeleteNotAllowed, id)
	}
	it := current.clone()
	it.setDeleted(true)
	if err := h.db.UpdateItem(it.record()); err != nil {
		return nil, h.infraFailure("soft delete item", err)
	}
	if err := h.index.TakeCopy(it.Title()); err != nil {
		h.resync(err)
	}
	return it, nil
}

// RecoverItem puts a soft-deleted item back into circulation.
func (h *ItemHandler) RecoverItem(id int64) (*Item, error) {
	current, err := h.GetItem(id, DeletedOnly)
	if err != nil {
		return nil, err
	}
	it := current.clone()
	it.setDeleted(false)
	if err := h.db.UpdateItem(it.record()); err != nil {
		return nil, h.infraFailure("recover item", err)
	}
	if it.Available() {
		if err := h.index.ReturnCopy(it.Title()); err != nil {
			h.resync(err)
		}
	}
	return it, nil
}

// HardDeleteItem removes an item and its rental history. Rented items cannot be
// removed.
func (h *ItemHandler) HardDeleteItem(id int64) error {
	it, err := h.GetItem(id, IncludeDeleted)
	if err != nil {
		return err
	}
	open, err := h.db.CountOpenRentals("item_id", id)
	if err != nil {
		return h.infraFailure("hard delete item", err)
	}
	if open > 0 || !it.Available() {
		return fmt.Errorf("%w: item %d is rented out", ErrDeleteNotAllowed, id)
	}
	if err := h.db.DeleteItem(id); err != nil {
		return h.infraFailure("hard delete item", err)
	}
	h.index.UnregisterItem(it.Title(), it.Barcode(), it.Available() && !it.Deleted())
	h.logger.Info("item removed", "item_id", id, "title", it.Title())
	return nil
}

// resync rebuilds the index after it disagreed with the database.
func (h *handler) resync(cause error) {
	h.logger.Warn("index out of sync, rebuilding", "err", cause)
	if err := h.index.Rebuild(h.db); err != nil {
		h.logger.Error("index rebuild failed", "err", err)
	}
}
