package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	mgr, _ := newManager(t)
	cat := seedCatalog(t, mgr)

	dune := addBook(t, mgr, cat, "Dune", "D-1")
	assert.True(t, dune.Available())
	assert.Equal(t, 28, dune.AllowedRentalDays())
	assert.Equal(t, "Frank Herbert", dune.AuthorName())
	assert.Equal(t, "Science Fiction", dune.ClassificationName)
	require.NotNil(t, dune.Literature())
	assert.Equal(t, "978-0441013593", dune.Literature().ISBN)

	_, err := mgr.Items.CreateLiterature("Dune", ItemTypeOtherBooks, "D-1", cat.authorID, cat.classificationID, "978-0441013593")
	assert.ErrorIs(t, err, ErrNotUnique)

	_, err = mgr.Items.CreateLiterature("Dune", ItemTypeOtherBooks, "D-9", 999, cat.classificationID, "978-0441013593")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.False(t, mgr.Index().BarcodeTaken("D-9"))

	_, err = mgr.Items.CreateItem(ItemInput{Title: "Dune", Type: ItemTypeFilm, Barcode: "D-8",
		AuthorID: cat.authorID, ClassificationID: cat.classificationID, Details: &Literature{ISBN: "1"}})
	assert.ErrorIs(t, err, ErrInvalidType)

	film, err := mgr.Items.CreateFilm("Dune", "F-1", cat.authorID, cat.classificationID, Film{AgeRating: 13, Country: "US", Actors: "Kyle MacLachlan"})
	require.NoError(t, err)
	require.NotNil(t, film.Film())
	assert.Equal(t, 13, film.Film().AgeRating)
	assert.Equal(t, 7, film.AllowedRentalDays())

	_, err = mgr.Items.CreateFilm("Dune", "F-2", cat.authorID, cat.classificationID, Film{AgeRating: 21})
	assert.ErrorIs(t, err, ErrInvalidAgeRating)

	assert.Equal(t, 2, mgr.Index().StoredCopies("Dune"))
	assert.Equal(t, 2, mgr.Index().AvailableCopies("Dune"))
}

func TestFindItems(t *testing.T) {
	mgr, _ := newManager(t)
	cat := seedCatalog(t, mgr)
	asimov, err := mgr.Authors.CreateAuthor("Isaac", "Asimov", "")
	require.NoError(t, err)
	dune := addBook(t, mgr, cat, "Dune", "D-1")
	messiah := addBook(t, mgr, cat, "Dune Messiah", "D-2")
	found, err := mgr.Items.CreateLiterature("Foundation", ItemTypeCourseLiterature, "F-1", asimov.ID(), cat.classificationID, "978-0553293357")
	require.NoError(t, err)

	ids := func(items []*Item, err error) []int64 {
		t.Helper()
		require.NoError(t, err)
		out := make([]int64, 0, len(items))
		for _, it := range items {
			out = append(out, it.ID())
		}
		return out
	}

	assert.Equal(t, []int64{dune.ID(), messiah.ID()}, ids(mgr.Items.FindItemsByTitle("DUNE")))
	assert.Equal(t, []int64{found.ID()}, ids(mgr.Items.FindItemsByAuthor("isaac", "")))
	assert.Equal(t, []int64{dune.ID(), messiah.ID()}, ids(mgr.Items.FindItemsByAuthor("", "Herbert")))
	assert.Equal(t, []int64{dune.ID(), messiah.ID(), found.ID()}, ids(mgr.Items.FindItemsByClassification("science fiction")))
	assert.Equal(t, []int64{found.ID()}, ids(mgr.Items.FindItemsByISBN("978-0553293357")))
	assert.Equal(t, []int64{found.ID()}, ids(mgr.Items.FindItemsByType(ItemTypeCourseLiterature)))

	_, err = mgr.Items.FindItemsByAuthor("", "")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = mgr.Items.FindItemsByTitle("  ")
	assert.ErrorIs(t, err, ErrInvalidTitle)
	_, err = mgr.Items.FindItemsByType("VINYL")
	assert.ErrorIs(t, err, ErrInvalidType)

	u := addUser(t, mgr, "paul", UserTypePatron)
	_, err = mgr.Rentals.CreateRental(u.ID(), dune.ID())
	require.NoError(t, err)
	assert.Equal(t, []int64{messiah.ID(), found.ID()}, ids(mgr.Items.ListAvailableItems()))
	assert.Equal(t, []int64{dune.ID(), messiah.ID(), found.ID()}, ids(mgr.Items.ListItems(ActiveOnly)))
}

func TestUpdateItem(t *testing.T) {
	mgr, _ := newManager(t)
	cat := seedCatalog(t, mgr)
	dune := addBook(t, mgr, cat, "Dune", "D-1")
	addBook(t, mgr, cat, "Dune", "D-2")

	taken := "D-2"
	_, err := mgr.Items.UpdateItem(dune.ID(), ItemUpdate{Barcode: &taken})
	assert.ErrorIs(t, err, ErrNotUnique)

	title, barcode := "Dune Messiah", "M-1"
	it, err := mgr.Items.UpdateItem(dune.ID(), ItemUpdate{Title: &title, Barcode: &barcode})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", it.Title())
	assert.Equal(t, 1, mgr.Index().StoredCopies("Dune"))
	assert.Equal(t, 1, mgr.Index().AvailableCopies("Dune Messiah"))
	assert.True(t, mgr.Index().BarcodeTaken("M-1"))
	assert.False(t, mgr.Index().BarcodeTaken("D-1"))

	film := ItemTypeFilm
	_, err = mgr.Items.UpdateItem(dune.ID(), ItemUpdate{Type: &film})
	assert.ErrorIs(t, err, ErrInvalidType, "a film needs film details")

	it, err = mgr.Items.UpdateItem(dune.ID(), ItemUpdate{Type: &film, Details: &Film{AgeRating: 12}})
	require.NoError(t, err)
	assert.Equal(t, ItemTypeFilm, it.Type())
	assert.Equal(t, 7, it.AllowedRentalDays())
	assert.Nil(t, it.Literature())

	days := 3
	it, err = mgr.Items.UpdateItem(dune.ID(), ItemUpdate{AllowedRentalDays: &days})
	require.NoError(t, err)
	assert.Equal(t, 3, it.AllowedRentalDays())
}

func TestItemDeleteLifecycle(t *testing.T) {
	mgr, _ := newManager(t)
	cat := seedCatalog(t, mgr)
	u := addUser(t, mgr, "paul", UserTypePatron)
	dune := addBook(t, mgr, cat, "Dune", "D-1")

	r, err := mgr.Rentals.CreateRental(u.ID(), dune.ID())
	require.NoError(t, err)
	_, err = mgr.Items.SoftDeleteItem(dune.ID())
	assert.ErrorIs(t, err, ErrDeleteNotAllowed)
	assert.ErrorIs(t, mgr.Items.HardDeleteItem(dune.ID()), ErrDeleteNotAllowed)

	_, err = mgr.Rentals.ReturnRental(r.ID())
	require.NoError(t, err)

	_, err = mgr.Items.SoftDeleteItem(dune.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Index().AvailableCopies("Dune"))
	assert.Equal(t, 1, mgr.Index().StoredCopies("Dune"))
	_, err = mgr.Rentals.CreateRental(u.ID(), dune.ID())
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = mgr.Items.RecoverItem(dune.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.Index().AvailableCopies("Dune"))

	require.NoError(t, mgr.Items.HardDeleteItem(dune.ID()))
	assert.Equal(t, 0, mgr.Index().StoredCopies("Dune"))
	assert.False(t, mgr.Index().BarcodeTaken("D-1"))
	_, err = mgr.Items.GetItem(dune.ID(), IncludeDeleted)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}
