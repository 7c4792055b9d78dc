package library

import (
	"fmt"
	"strings"
)

// ItemType decides the rental period of an item.
type ItemType string

const (
	ItemTypeReferenceLiterature ItemType = "REFERENCE_LITERATURE"
	ItemTypeMagazine            ItemType = "MAGAZINE"
	ItemTypeFilm                ItemType = "FILM"
	ItemTypeCourseLiterature    ItemType = "COURSE_LITERATURE"
	ItemTypeOtherBooks          ItemType = "OTHER_BOOKS"
)

var defaultAllowedRentalDays = map[ItemType]int{
	ItemTypeReferenceLiterature: 0,
	ItemTypeMagazine:            0,
	ItemTypeFilm:                7,
	ItemTypeCourseLiterature:    14,
	ItemTypeOtherBooks:          28,
}

// DefaultAllowedRentalDays returns the rental period for t. A zero period means the
// item is read on site only.
func DefaultAllowedRentalDays(t ItemType) (int, error) {
	days, ok := defaultAllowedRentalDays[t]
	if !ok {
		return 0, invalid(ErrInvalidType, "itemType", "unknown item type %q", t)
	}
	return days, nil
}

// ParseItemType accepts the enum name in any case.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := DefaultAllowedRentalDays(t); err != nil {
		return "", err
	}
	return t, nil
}

// Details is the per-variant payload of an Item: *Literature or *Film.
type Details interface {
	validate() error
	kind() string
}

// Literature is the payload of every non-film item.
type Literature struct {
	ISBN string
}

func (l *Literature) kind() string { return "literature" }

func (l *Literature) validate() error {
	return checkText(ErrInvalidISBN, "isbn", l.ISBN, 1, limits.ISBNMax)
}

// Film is the payload of FILM items.
type Film struct {
	AgeRating int
	Country   string
	Actors    string
}

func (f *Film) kind() string { return "film" }

func (f *Film) validate() error {
	if f.AgeRating < 0 || f.AgeRating > 18 {
		return invalid(ErrInvalidAgeRating, "ageRating", "must be within 0..18, got %d", f.AgeRating)
	}
	if err := checkText(ErrInvalidName, "country", f.Country, 0, limits.NameMax); err != nil {
		return err
	}
	return checkText(ErrInvalidDescription, "actors", f.Actors, 0, limits.DescriptionMax)
}

// Item is a rentable copy. Several items may share a title.
type Item struct {
	Entity

	id                int64
	title             string
	itemType          ItemType
	barcode           string
	authorID          int64
	classificationID  int64
	allowedRentalDays int
	available         bool
	details           Details

	// Filled from joins on retrieval.
	AuthorFirstname    string
	AuthorLastname     string
	ClassificationName string
}

// ItemRecord is the stored form of an Item.
type ItemRecord struct {
	ID                 int64
	Title              string
	Type               ItemType
	Barcode            string
	AuthorID           int64
	ClassificationID   int64
	AllowedRentalDays  int
	Available          bool
	Deleted            bool
	Details            Details
	AuthorFirstname    string
	AuthorLastname     string
	ClassificationName string
}

// NewItem builds an unsaved item with the default rental period of its type.
func NewItem(title string, itemType ItemType, barcode string, authorID, classificationID int64, details Details) (*Item, error) {
	it := &Item{available: true}
	if err := it.SetTitle(title); err != nil {
		return nil, err
	}
	if err := it.SetBarcode(barcode); err != nil {
		return nil, err
	}
	if err := it.SetAuthorID(authorID); err != nil {
		return nil, err
	}
	if err := it.SetClassificationID(classificationID); err != nil {
		return nil, err
	}
	if err := it.SetType(itemType, details); err != nil {
		return nil, err
	}
	return it, nil
}

// NewItemFromRecord rebuilds a stored item.
func NewItemFromRecord(rec ItemRecord) (*Item, error) {
	it, err := NewItem(rec.Title, rec.Type, rec.Barcode, rec.AuthorID, rec.ClassificationID, rec.Details)
	if err != nil {
		return nil, err
	}
	if err := it.SetID(rec.ID); err != nil {
		return nil, err
	}
	if err := it.SetAllowedRentalDays(rec.AllowedRentalDays); err != nil {
		return nil, err
	}
	it.available = rec.Available
	it.deleted = rec.Deleted
	it.AuthorFirstname = rec.AuthorFirstname
	it.AuthorLastname = rec.AuthorLastname
	it.ClassificationName = rec.ClassificationName
	return it, nil
}

func (it *Item) ID() int64               { return it.id }
func (it *Item) Title() string           { return it.title }
func (it *Item) Type() ItemType          { return it.itemType }
func (it *Item) Barcode() string         { return it.barcode }
func (it *Item) AuthorID() int64         { return it.authorID }
func (it *Item) ClassificationID() int64 { return it.classificationID }
func (it *Item) AllowedRentalDays() int  { return it.allowedRentalDays }
func (it *Item) Available() bool         { return it.available }
func (it *Item) Details() Details        { return it.details }
func (it *Item) clone() *Item            { c := *it; return &c }

// Literature returns the literature payload, or nil for films.
func (it *Item) Literature() *Literature {
	l, _ := it.details.(*Literature)
	return l
}

// Film returns the film payload, or nil for literature.
func (it *Item) Film() *Film {
	f, _ := it.details.(*Film)
	return f
}

// AuthorName joins the denormalized author names.
func (it *Item) AuthorName() string {
	return strings.TrimSpace(it.AuthorFirstname + " " + it.AuthorLastname)
}

func (it *Item) String() string {
	return fmt.Sprintf("%s [%s] (#%d)", it.title, it.barcode, it.id)
}

func (it *Item) SetID(id int64) error {
	if err := checkID("itemID", id); err != nil {
		return err
	}
	it.id = id
	return nil
}

func (it *Item) SetTitle(title string) error {
	if err := checkText(ErrInvalidTitle, "title", title, 1, limits.TitleMax); err != nil {
		return err
	}
	it.title = title
	return nil
}

func (it *Item) SetBarcode(barcode string) error {
	if err := checkText(ErrInvalidBarcode, "barcode", barcode, 1, limits.BarcodeMax); err != nil {
		return err
	}
	it.barcode = barcode
	return nil
}

func (it *Item) SetAuthorID(id int64) error {
	if err := checkID("authorID", id); err != nil {
		return err
	}
	it.authorID = id
	return nil
}

func (it *Item) SetClassificationID(id int64) error {
	if err := checkID("classificationID", id); err != nil {
		return err
	}
	it.classificationID = id
	return nil
}

// SetType changes the item type together with its payload and resets the rental
// period to the type default.
func (it *Item) SetType(t ItemType, details Details) error {
	days, err := DefaultAllowedRentalDays(t)
	if err != nil {
		return err
	}
	if details == nil {
		return invalid(ErrInvalidType, "details", "%s needs a payload", t)
	}
	if (t == ItemTypeFilm) != (details.kind() == "film") {
		return invalid(ErrInvalidType, "details", "%s cannot carry %s details", t, details.kind())
	}
	if err := details.validate(); err != nil {
		return err
	}
	it.itemType = t
	it.details = details
	it.allowedRentalDays = days
	return nil
}

// SetDetails replaces the payload without changing the type.
func (it *Item) SetDetails(details Details) error {
	days := it.allowedRentalDays
	if err := it.SetType(it.itemType, details); err != nil {
		return err
	}
	it.allowedRentalDays = days
	return nil
}

func (it *Item) SetAllowedRentalDays(days int) error {
	if days < 0 {
		return invalid(ErrInvalidRentalDays, "allowedRentalDays", "must not be negative, got %d", days)
	}
	it.allowedRentalDays = days
	return nil
}

func (it *Item) setAvailable(available bool) { it.available = available }

func (it *Item) record() ItemRecord {
	return ItemRecord{
		ID:                 it.id,
		Title:              it.title,
		Type:               it.itemType,
		Barcode:            it.barcode,
		AuthorID:           it.authorID,
		ClassificationID:   it.classificationID,
		AllowedRentalDays:  it.allowedRentalDays,
		Available:          it.available,
		Deleted:            it.deleted,
		Details:            it.details,
		AuthorFirstname:    it.AuthorFirstname,
		AuthorLastname:     it.AuthorLastname,
		ClassificationName: it.ClassificationName,
	}
}
