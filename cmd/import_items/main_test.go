package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"library-circulation/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `title,type,barcode,author_first,author_last,classification,isbn,age_rating,country,actors
Dune,OTHER_BOOKS,D-1,Frank,Herbert,Science Fiction,978-0441013593,,,
Dune,OTHER_BOOKS,D-2,frank,herbert,science fiction,978-0441013593,,,
Dune,FILM,F-1,Denis,Villeneuve,Science Fiction,,13,USA,Timothee Chalamet
Broken,NOVEL,B-1,Frank,Herbert,Science Fiction,123,,,
Duplicate,OTHER_BOOKS,D-1,Frank,Herbert,Science Fiction,978-0441013593,,,
short,row
`

func TestImportItems(t *testing.T) {
	cfg := library.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "lib.db")
	manager, err := library.NewLibraryManager(cfg)
	require.NoError(t, err)
	defer manager.Close()

	var out bytes.Buffer
	ok, failed, err := importItems(manager, strings.NewReader(sample), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 3, failed)
	assert.Contains(t, out.String(), "SUCCESS")

	authors, err := manager.Authors.ListAuthors(library.ActiveOnly)
	require.NoError(t, err)
	assert.Len(t, authors, 2, "name matching ignores case")
	classes, err := manager.Classifications.ListClassifications(library.ActiveOnly)
	require.NoError(t, err)
	assert.Len(t, classes, 1)

	assert.Equal(t, 3, manager.Index().StoredCopies("Dune"))
	film, err := manager.Items.GetItemByBarcode("F-1", library.ActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, film.Film())
	assert.Equal(t, 13, film.Film().AgeRating)
}
