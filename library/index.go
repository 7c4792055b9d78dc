package library

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Index keeps the uniqueness and availability bookkeeping the handlers consult
// before touching the database. It is rebuilt from the tables at startup and is
// only mutated through the handlers after a successful commit.
type Index struct {
	mu sync.Mutex

	usernames map[string]struct{}
	emails    map[string]struct{}

	storedTitles    map[string]int
	availableTitles map[string]int
	barcodes        map[string]struct{}
	barcodeOrder    []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		usernames:       make(map[string]struct{}),
		emails:          make(map[string]struct{}),
		storedTitles:    make(map[string]int),
		availableTitles: make(map[string]int),
		barcodes:        make(map[string]struct{}),
	}
}

func emailKey(email string) string { return strings.ToLower(email) }

// Rebuild replaces the index contents with a full scan of db.
func (ix *Index) Rebuild(db *Database) error {
	users, err := db.ListUsers(IncludeDeleted)
	if err != nil {
		return err
	}
	items, err := db.ListItems(IncludeDeleted)
	if err != nil {
		return err
	}

	fresh := NewIndex()
	for _, u := range users {
		fresh.usernames[u.Username] = struct{}{}
		fresh.emails[emailKey(u.Email)] = struct{}{}
	}
	for _, it := range items {
		fresh.storedTitles[it.Title]++
		if it.Available && !it.Deleted {
			fresh.availableTitles[it.Title]++
		}
		fresh.addBarcode(it.Barcode)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.usernames = fresh.usernames
	ix.emails = fresh.emails
	ix.storedTitles = fresh.storedTitles
	ix.availableTitles = fresh.availableTitles
	ix.barcodes = fresh.barcodes
	ix.barcodeOrder = fresh.barcodeOrder
	return nil
}

// ------------------ Users ------------------

func (ix *Index) UsernameTaken(username string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.usernames[username]
	return ok
}

func (ix *Index) EmailTaken(email string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.emails[emailKey(email)]
	return ok
}

func (ix *Index) RegisterUser(username, email string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.usernames[username] = struct{}{}
	ix.emails[emailKey(email)] = struct{}{}
}

func (ix *Index) UnregisterUser(username, email string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.usernames, username)
	delete(ix.emails, emailKey(email))
}

// RenameUser moves a user from the old username/email pair to the new one.
func (ix *Index) RenameUser(oldName, oldEmail, newName, newEmail string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.usernames, oldName)
	delete(ix.emails, emailKey(oldEmail))
	ix.usernames[newName] = struct{}{}
	ix.emails[emailKey(newEmail)] = struct{}{}
}

// ------------------ Items ------------------

func (ix *Index) BarcodeTaken(barcode string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.barcodes[barcode]
	return ok
}

// Barcodes returns every registered barcode in registration order, which after
// a Rebuild is item ID order.
func (ix *Index) Barcodes() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return slices.Clone(ix.barcodeOrder)
}

func (ix *Index) addBarcode(barcode string) {
	if _, ok := ix.barcodes[barcode]; ok {
		return
	}
	ix.barcodes[barcode] = struct{}{}
	ix.barcodeOrder = append(ix.barcodeOrder, barcode)
}

func (ix *Index) removeBarcode(barcode string) {
	if _, ok := ix.barcodes[barcode]; !ok {
		return
	}
	delete(ix.barcodes, barcode)
	if i := slices.Index(ix.barcodeOrder, barcode); i >= 0 {
		ix.barcodeOrder = slices.Delete(ix.barcodeOrder, i, i+1)
	}
}

// StoredCopies is the number of items carrying title.
func (ix *Index) StoredCopies(title string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.storedTitles[title]
}

// AvailableCopies is the number of rentable items carrying title.
func (ix *Index) AvailableCopies(title string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.availableTitles[title]
}

func (ix *Index) RegisterItem(title, barcode string, available bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.storedTitles[title]++
	if available {
		ix.availableTitles[title]++
	}
	ix.addBarcode(barcode)
}

func (ix *Index) UnregisterItem(title, barcode string, available bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	decrement(ix.storedTitles, title)
	if available {
		decrement(ix.availableTitles, title)
	}
	ix.removeBarcode(barcode)
}

// RetitleItem moves one copy between titles and barcodes.
func (ix *Index) RetitleItem(oldTitle, oldBarcode, newTitle, newBarcode string, available bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	decrement(ix.storedTitles, oldTitle)
	ix.storedTitles[newTitle]++
	if available {
		decrement(ix.availableTitles, oldTitle)
		ix.availableTitles[newTitle]++
	}
	// A changed barcode keeps its item's position.
	if i := slices.Index(ix.barcodeOrder, oldBarcode); i >= 0 {
		delete(ix.barcodes, oldBarcode)
		ix.barcodes[newBarcode] = struct{}{}
		ix.barcodeOrder[i] = newBarcode
	} else {
		ix.addBarcode(newBarcode)
	}
}

// TakeCopy marks one copy of title as rented out.
func (ix *Index) TakeCopy(title string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.availableTitles[title] == 0 {
		return notFound("no available copy of %q", title)
	}
	decrement(ix.availableTitles, title)
	return nil
}

// ReturnCopy marks one copy of title as available again.
func (ix *Index) ReturnCopy(title string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.availableTitles[title] >= ix.storedTitles[title] {
		return fmt.Errorf("index: all %d copies of %q already available", ix.storedTitles[title], title)
	}
	ix.availableTitles[title]++
	return nil
}

func decrement(m map[string]int, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}
