package library

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testClock starts well in the past so rentals and late returns made on it are
// never dated in the future.
type testClock struct{ t time.Time }

func newTestClock() *testClock {
	y, m, d := time.Now().AddDate(0, 0, -40).Date()
	return &testClock{t: time.Date(y, m, d, 10, 30, 0, 0, time.Local)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Set(t time.Time)         { c.t = t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *testClock) AdvanceDays(days int)    { c.t = c.t.AddDate(0, 0, days) }

func newManager(t *testing.T) (*LibraryManager, *testClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "lib.db")
	mgr, err := NewLibraryManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	mgr.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := newTestClock()
	mgr.SetClock(clock.Now)
	return mgr, clock
}

// catalog is a minimal set of references items can point at.
type catalog struct {
	authorID         int64
	classificationID int64
}

func seedCatalog(t *testing.T, mgr *LibraryManager) catalog {
	t.Helper()
	a, err := mgr.Authors.CreateAuthor("Frank", "Herbert", "")
	require.NoError(t, err)
	c, err := mgr.Classifications.CreateClassification("Science Fiction", "")
	require.NoError(t, err)
	return catalog{authorID: a.ID(), classificationID: c.ID()}
}

func addBook(t *testing.T, mgr *LibraryManager, cat catalog, title, barcode string) *Item {
	t.Helper()
	it, err := mgr.Items.CreateLiterature(title, ItemTypeOtherBooks, barcode, cat.authorID, cat.classificationID, "978-0441013593")
	require.NoError(t, err)
	return it
}

func addUser(t *testing.T, mgr *LibraryManager, username string, userType UserType) *User {
	t.Helper()
	u, err := mgr.Users.CreateUser(username, "secret1", username+"@example.com", userType)
	require.NoError(t, err)
	return u
}
