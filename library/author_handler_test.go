package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorLifecycle(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.Authors.CreateAuthor(" ", "", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	single, err := mgr.Authors.CreateAuthor("", "Homer", "")
	require.NoError(t, err)
	assert.Equal(t, "Homer", single.FullName())

	frank, err := mgr.Authors.CreateAuthor("Frank", "Herbert", "Dune")
	require.NoError(t, err)

	found, err := mgr.Authors.FindAuthors("frank", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, frank.ID(), found[0].ID())
	_, err = mgr.Authors.FindAuthors("", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	desc := "Author of Dune"
	updated, err := mgr.Authors.UpdateAuthor(frank.ID(), "Franklin", "Herbert", &desc)
	require.NoError(t, err)
	assert.Equal(t, "Franklin Herbert", updated.FullName())
	assert.Equal(t, desc, updated.Description())

	_, err = mgr.Authors.SoftDeleteAuthor(frank.ID())
	require.NoError(t, err)
	all, err := mgr.Authors.ListAuthors(ActiveOnly)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, err = mgr.Authors.RecoverAuthor(frank.ID())
	require.NoError(t, err)

	cls, err := mgr.Classifications.CreateClassification("Science Fiction", "")
	require.NoError(t, err)
	_, err = mgr.Items.CreateLiterature("Dune", ItemTypeOtherBooks, "D-1", frank.ID(), cls.ID(), "978-0441013593")
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Authors.HardDeleteAuthor(frank.ID()), ErrDeleteNotAllowed)
	require.NoError(t, mgr.Authors.HardDeleteAuthor(single.ID()))
	_, err = mgr.Authors.GetAuthor(single.ID(), IncludeDeleted)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestClassificationLifecycle(t *testing.T) {
	mgr, _ := newManager(t)

	sf, err := mgr.Classifications.CreateClassification("Science Fiction", "")
	require.NoError(t, err)
	_, err = mgr.Classifications.CreateClassification("science fiction", "")
	assert.ErrorIs(t, err, ErrNotUnique)
	_, err = mgr.Classifications.CreateClassification("", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	fantasy, err := mgr.Classifications.CreateClassification("Fantasy", "")
	require.NoError(t, err)
	_, err = mgr.Classifications.UpdateClassification(fantasy.ID(), "Science Fiction", nil)
	assert.ErrorIs(t, err, ErrNotUnique)

	// Renaming to itself with other casing is fine.
	renamed, err := mgr.Classifications.UpdateClassification(sf.ID(), "Science fiction", nil)
	require.NoError(t, err)
	assert.Equal(t, "Science fiction", renamed.Name())

	byName, err := mgr.Classifications.GetClassificationByName("SCIENCE FICTION", ActiveOnly)
	require.NoError(t, err)
	assert.Equal(t, sf.ID(), byName.ID())

	_, err = mgr.Classifications.SoftDeleteClassification(fantasy.ID())
	require.NoError(t, err)
	active, err := mgr.Classifications.ListClassifications(ActiveOnly)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	a, err := mgr.Authors.CreateAuthor("Frank", "Herbert", "")
	require.NoError(t, err)
	_, err = mgr.Items.CreateLiterature("Dune", ItemTypeOtherBooks, "D-1", a.ID(), fantasy.ID(), "978-0441013593")
	assert.ErrorIs(t, err, ErrEntityNotFound, "soft-deleted classification cannot take new items")

	_, err = mgr.Classifications.RecoverClassification(fantasy.ID())
	require.NoError(t, err)
	require.NoError(t, mgr.Classifications.HardDeleteClassification(fantasy.ID()))
}
