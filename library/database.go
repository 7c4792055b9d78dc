package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// LookupMode selects which rows a query sees with respect to soft deletion.
type LookupMode int

const (
	ActiveOnly LookupMode = iota
	IncludeDeleted
	DeletedOnly
)

func (m LookupMode) clause(alias string) string {
	switch m {
	case ActiveOnly:
		return " AND " + alias + ".deleted = 0"
	case DeletedOnly:
		return " AND " + alias + ".deleted = 1"
	default:
		return ""
	}
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type statements struct {
	addUser   *sql.Stmt
	addItem   *sql.Stmt
	addRental *sql.Stmt
}

// store holds the SQL for every table. It runs either directly on the
// connection pool or inside a transaction.
type store struct {
	q     querier
	tx    *sql.Tx
	stmts *statements
}

func (s store) stmt(st *sql.Stmt) *sql.Stmt {
	if s.tx != nil {
		return s.tx.Stmt(st)
	}
	return st
}

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	store
	db *sql.DB
}

// Tx is a store bound to an open transaction.
type Tx struct {
	store
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbErr("create db dir", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, dbErr("open sqlite", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, dbErr("migrate", err)
	}

	stmts, err := prepareStatements(db)
	if err != nil {
		db.Close()
		return nil, dbErr("prepare", err)
	}
	return &Database{store: store{q: db, stmts: stmts}, db: db}, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	for _, st := range []*sql.Stmt{d.stmts.addUser, d.stmts.addItem, d.stmts.addRental} {
		if st != nil {
			st.Close()
		}
	}
	return d.db.Close()
}

// Tx runs fn in a transaction. Any error from fn rolls everything back.
func (d *Database) Tx(fn func(tx *Tx) error) error {
	sqlTx, err := d.db.Begin()
	if err != nil {
		return dbErr("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{store: store{q: sqlTx, tx: sqlTx, stmts: d.stmts}}); err != nil {
		return err
	}
	return dbErr("commit", sqlTx.Commit())
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE COLLATE NOCASE,
            user_type TEXT NOT NULL,
            allowed_rentals INTEGER NOT NULL,
            current_rentals INTEGER NOT NULL DEFAULT 0,
            late_fee TEXT NOT NULL DEFAULT '0',
            allowed_to_rent BOOLEAN NOT NULL DEFAULT 1,
            deleted BOOLEAN NOT NULL DEFAULT 0,
            CHECK (current_rentals >= 0 AND current_rentals <= allowed_rentals)
        );`,
		`CREATE TABLE IF NOT EXISTS authors (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            firstname TEXT NOT NULL DEFAULT '',
            lastname TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS classifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE COLLATE NOCASE,
            description TEXT NOT NULL DEFAULT '',
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            item_type TEXT NOT NULL,
            barcode TEXT NOT NULL UNIQUE,
            author_id INTEGER NOT NULL REFERENCES authors(id),
            classification_id INTEGER NOT NULL REFERENCES classifications(id),
            allowed_rental_days INTEGER NOT NULL,
            available BOOLEAN NOT NULL DEFAULT 1,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS literature (
            item_id INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
            isbn TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS films (
            item_id INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
            age_rating INTEGER NOT NULL DEFAULT 0,
            country TEXT NOT NULL DEFAULT '',
            actors TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS rentals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
            rental_date INTEGER NOT NULL,
            due_date INTEGER NOT NULL,
            return_date INTEGER,
            late_fee TEXT NOT NULL DEFAULT '0',
            receipt TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE INDEX IF NOT EXISTS idx_items_title ON items(title);`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_user ON rentals(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_item ON rentals(item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_date ON rentals(rental_date);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func prepareStatements(db *sql.DB) (*statements, error) {
	var (
		s   statements
		err error
	)
	if s.addUser, err = db.Prepare(`INSERT INTO users(username,password_hash,email,user_type,allowed_rentals,current_rentals,late_fee,allowed_to_rent,deleted)
        VALUES(?,?,?,?,?,?,?,?,?)`); err != nil {
		return nil, err
	}
	if s.addItem, err = db.Prepare(`INSERT INTO items(title,item_type,barcode,author_id,classification_id,allowed_rental_days,available,deleted)
        VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return nil, err
	}
	if s.addRental, err = db.Prepare(`INSERT INTO rentals(user_id,item_id,rental_date,due_date,return_date,late_fee,receipt,deleted)
        VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return nil, err
	}
	return &s, nil
}

// ---------------------------------------------------------------------------
// Scanning helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func unixTime(t time.Time) int64 { return t.Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0) }

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func noRows(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(format, args...)
	}
	return dbErr("query", err)
}

// affected turns "zero rows changed" into ErrEntityNotFound.
func affected(res sql.Result, err error, what string, id int64) error {
	if err != nil {
		return dbErr("update "+what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("update "+what, err)
	}
	if n == 0 {
		return notFound("%s %d", what, id)
	}
	return nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `u.id,u.username,u.password_hash,u.email,u.user_type,u.allowed_rentals,u.current_rentals,u.late_fee,u.allowed_to_rent,u.deleted`

func scanUser(row rowScanner) (UserRecord, error) {
	var rec UserRecord
	err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.Email, &rec.Type,
		&rec.AllowedRentals, &rec.CurrentRentals, &rec.LateFee, &rec.AllowedToRent, &rec.Deleted)
	return rec, err
}

func (s store) InsertUser(rec UserRecord) (int64, error) {
	res, err := s.stmt(s.stmts.addUser).Exec(rec.Username, rec.PasswordHash, rec.Email, string(rec.Type),
		rec.AllowedRentals, rec.CurrentRentals, rec.LateFee, rec.AllowedToRent, rec.Deleted)
	if err != nil {
		return 0, dbErr("insert user", err)
	}
	id, err := res.LastInsertId()
	return id, dbErr("insert user", err)
}

func (s store) UpdateUser(rec UserRecord) error {
	res, err := s.q.Exec(`UPDATE users SET username=?, password_hash=?, email=?, user_type=?, allowed_rentals=?,
        current_rentals=?, late_fee=?, allowed_to_rent=?, deleted=? WHERE id=?`,
		rec.Username, rec.PasswordHash, rec.Email, string(rec.Type), rec.AllowedRentals,
		rec.CurrentRentals, rec.LateFee, rec.AllowedToRent, rec.Deleted, rec.ID)
	return affected(res, err, "user", rec.ID)
}

func (s store) DeleteUser(id int64) error {
	res, err := s.q.Exec(`DELETE FROM users WHERE id=?`, id)
	return affected(res, err, "user", id)
}

func (s store) GetUser(id int64, mode LookupMode) (UserRecord, error) {
	rec, err := scanUser(s.q.QueryRow(`SELECT `+userColumns+` FROM users u WHERE u.id=?`+mode.clause("u"), id))
	if err != nil {
		return UserRecord{}, noRows(err, "user %d", id)
	}
	return rec, nil
}

func (s store) GetUserByUsername(username string, mode LookupMode) (UserRecord, error) {
	rec, err := scanUser(s.q.QueryRow(`SELECT `+userColumns+` FROM users u WHERE u.username=?`+mode.clause("u"), username))
	if err != nil {
		return UserRecord{}, noRows(err, "user %q", username)
	}
	return rec, nil
}

func (s store) GetUserByEmail(email string, mode LookupMode) (UserRecord, error) {
	rec, err := scanUser(s.q.QueryRow(`SELECT `+userColumns+` FROM users u WHERE u.email=?`+mode.clause("u"), email))
	if err != nil {
		return UserRecord{}, noRows(err, "user with email %q", email)
	}
	return rec, nil
}

// ListUsers returns users ordered by id.
func (s store) ListUsers(mode LookupMode) ([]UserRecord, error) {
	rows, err := s.q.Query(`SELECT ` + userColumns + ` FROM users u WHERE 1=1` + mode.clause("u") + ` ORDER BY u.id`)
	if err != nil {
		return nil, dbErr("list users", err)
	}
	defer rows.Close()

	var users []UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, dbErr("scan user", err)
		}
		users = append(users, rec)
	}
	return users, dbErr("list users", rows.Err())
}

// ---------------------------------------------------------------------------
// Authors & classifications
// ---------------------------------------------------------------------------

type AuthorRecord struct {
	ID          int64
	Firstname   string
	Lastname    string
	Description string
	Deleted     bool
}

type ClassificationRecord struct {
	ID          int64
	Name        string
	Description string
	Deleted     bool
}

func (s store) InsertAuthor(rec AuthorRecord) (int64, error) {
	res, err := s.q.Exec(`INSERT INTO authors(firstname,lastname,description,deleted) VALUES(?,?,?,?)`,
		rec.Firstname, rec.Lastname, rec.Description, rec.Deleted)
	if err != nil {
		return 0, dbErr("insert author", err)
	}
	id, err := res.LastInsertId()
	return id, dbErr("insert author", err)
}

func (s store) UpdateAuthor(rec AuthorRecord) error {
	res, err := s.q.Exec(`UPDATE authors SET firstname=?, lastname=?, description=?, deleted=? WHERE id=?`,
		rec.Firstname, rec.Lastname, rec.Description, rec.Deleted, rec.ID)
	return affected(res, err, "author", rec.ID)
}

func (s store) DeleteAuthor(id int64) error {
	res, err := s.q.Exec(`DELETE FROM authors WHERE id=?`, id)
	return affected(res, err, "author", id)
}

func (s store) GetAuthor(id int64, mode LookupMode) (AuthorRecord, error) {
	var rec AuthorRecord
	err := s.q.QueryRow(`SELECT a.id,a.firstname,a.lastname,a.description,a.deleted FROM authors a WHERE a.id=?`+mode.clause("a"), id).
		Scan(&rec.ID, &rec.Firstname, &rec.Lastname, &rec.Description, &rec.Deleted)
	if err != nil {
		return AuthorRecord{}, noRows(err, "author %d", id)
	}
	return rec, nil
}

// FindAuthors matches the given name parts case-insensitively; an empty part
// matches anything.
func (s store) FindAuthors(firstname, lastname string, mode LookupMode) ([]AuthorRecord, error) {
	query := `SELECT a.id,a.firstname,a.lastname,a.description,a.deleted FROM authors a WHERE 1=1`
	var args []any
	if firstname != "" {
		query += ` AND LOWER(a.firstname) = LOWER(?)`
		args = append(args, firstname)
	}
	if lastname != "" {
		query += ` AND LOWER(a.lastname) = LOWER(?)`
		args = append(args, lastname)
	}
	query += mode.clause("a") + ` ORDER BY a.id`

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, dbErr("find authors", err)
	}
	defer rows.Close()
	var out []AuthorRecord
	for rows.Next() {
		var rec AuthorRecord
		if err := rows.Scan(&rec.ID, &rec.Firstname, &rec.Lastname, &rec.Description, &rec.Deleted); err != nil {
			return nil, dbErr("scan author", err)
		}
		out = append(out, rec)
	}
	return out, dbErr("find authors", rows.Err())
}

func (s store) InsertClassification(rec ClassificationRecord) (int64, error) {
	res, err := s.q.Exec(`INSERT INTO classifications(name,description,deleted) VALUES(?,?,?)`,
		rec.Name, rec.Description, rec.Deleted)
	if err != nil {
		return 0, dbErr("insert classification", err)
	}
	id, err := res.LastInsertId()
	return id, dbErr("insert classification", err)
}

func (s store) UpdateClassification(rec ClassificationRecord) error {
	res, err := s.q.Exec(`UPDATE classifications SET name=?, description=?, deleted=? WHERE id=?`,
		rec.Name, rec.Description, rec.Deleted, rec.ID)
	return affected(res, err, "classification", rec.ID)
}

func (s store) DeleteClassification(id int64) error {
	res, err := s.q.Exec(`DELETE FROM classifications WHERE id=?`, id)
	return affected(res, err, "classification", id)
}

func scanClassification(row rowScanner) (ClassificationRecord, error) {
	var rec ClassificationRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Deleted)
	return rec, err
}

func (s store) GetClassification(id int64, mode LookupMode) (ClassificationRecord, error) {
	rec, err := scanClassification(s.q.QueryRow(`SELECT c.id,c.name,c.description,c.deleted FROM classifications c WHERE c.id=?`+mode.clause("c"), id))
	if err != nil {
		return ClassificationRecord{}, noRows(err, "classification %d", id)
	}
	return rec, nil
}

func (s store) GetClassificationByName(name string, mode LookupMode) (ClassificationRecord, error) {
	rec, err := scanClassification(s.q.QueryRow(`SELECT c.id,c.name,c.description,c.deleted FROM classifications c WHERE c.name=?`+mode.clause("c"), name))
	if err != nil {
		return ClassificationRecord{}, noRows(err, "classification %q", name)
	}
	return rec, nil
}

func (s store) ListClassifications(mode LookupMode) ([]ClassificationRecord, error) {
	rows, err := s.q.Query(`SELECT c.id,c.name,c.description,c.deleted FROM classifications c WHERE 1=1` + mode.clause("c") + ` ORDER BY c.id`)
	if err != nil {
		return nil, dbErr("list classifications", err)
	}
	defer rows.Close()
	var out []ClassificationRecord
	for rows.Next() {
		rec, err := scanClassification(rows)
		if err != nil {
			return nil, dbErr("scan classification", err)
		}
		out = append(out, rec)
	}
	return out, dbErr("list classifications", rows.Err())
}

// CountItemsReferencing counts items (deleted or not) pointing at an author or
// classification.
func (s store) CountItemsReferencing(column string, id int64) (int, error) {
	if column != "author_id" && column != "classification_id" {
		return 0, fmt.Errorf("count items: unsupported column %q", column)
	}
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM items WHERE `+column+`=?`, id).Scan(&n)
	return n, dbErr("count items", err)
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// ItemFilter narrows item listings. Zero fields are ignored.
type ItemFilter struct {
	Title           string // substring, case-insensitive
	AuthorFirstname string
	AuthorLastname  string
	Classification  string
	ISBN            string
	Barcode         string
	Type            ItemType
	AvailableOnly   bool
}

const itemSelect = `SELECT i.id,i.title,i.item_type,i.barcode,i.author_id,i.classification_id,i.allowed_rental_days,
        i.available,i.deleted,a.firstname,a.lastname,c.name,
        l.isbn,f.age_rating,f.country,f.actors
    FROM items i
    JOIN authors a ON a.id = i.author_id
    JOIN classifications c ON c.id = i.classification_id
    LEFT JOIN literature l ON l.item_id = i.id
    LEFT JOIN films f ON f.item_id = i.id`

func scanItem(row rowScanner) (ItemRecord, error) {
	var (
		rec       ItemRecord
		isbn      sql.NullString
		ageRating sql.NullInt64
		country   sql.NullString
		actors    sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Title, &rec.Type, &rec.Barcode, &rec.AuthorID, &rec.ClassificationID,
		&rec.AllowedRentalDays, &rec.Available, &rec.Deleted, &rec.AuthorFirstname, &rec.AuthorLastname,
		&rec.ClassificationName, &isbn, &ageRating, &country, &actors)
	if err != nil {
		return ItemRecord{}, err
	}
	if rec.Type == ItemTypeFilm {
		rec.Details = &Film{AgeRating: int(ageRating.Int64), Country: country.String, Actors: actors.String}
	} else {
		rec.Details = &Literature{ISBN: isbn.String}
	}
	return rec, nil
}

func (s store) writeDetails(id int64, details Details) error {
	if _, err := s.q.Exec(`DELETE FROM literature WHERE item_id=?`, id); err != nil {
		return dbErr("clear literature", err)
	}
	if _, err := s.q.Exec(`DELETE FROM films WHERE item_id=?`, id); err != nil {
		return dbErr("clear film", err)
	}
	var err error
	switch d := details.(type) {
	case *Literature:
		_, err = s.q.Exec(`INSERT INTO literature(item_id,isbn) VALUES(?,?)`, id, d.ISBN)
	case *Film:
		_, err = s.q.Exec(`INSERT INTO films(item_id,age_rating,country,actors) VALUES(?,?,?,?)`, id, d.AgeRating, d.Country, d.Actors)
	default:
		err = fmt.Errorf("unknown item details %T", details)
	}
	return dbErr("write item details", err)
}

// InsertItem stores the base row and its variant row. Callers run it inside Tx.
func (s store) InsertItem(rec ItemRecord) (int64, error) {
	res, err := s.stmt(s.stmts.addItem).Exec(rec.Title, string(rec.Type), rec.Barcode, rec.AuthorID,
		rec.ClassificationID, rec.AllowedRentalDays, rec.Available, rec.Deleted)
	if err != nil {
		return 0, dbErr("insert item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbErr("insert item", err)
	}
	return id, s.writeDetails(id, rec.Details)
}

func (s store) UpdateItem(rec ItemRecord) error {
	res, err := s.q.Exec(`UPDATE items SET title=?, item_type=?, barcode=?, author_id=?, classification_id=?,
        allowed_rental_days=?, available=?, deleted=? WHERE id=?`,
		rec.Title, string(rec.Type), rec.Barcode, rec.AuthorID, rec.ClassificationID,
		rec.AllowedRentalDays, rec.Available, rec.Deleted, rec.ID)
	if err := affected(res, err, "item", rec.ID); err != nil {
		return err
	}
	return s.writeDetails(rec.ID, rec.Details)
}

// SetItemAvailable flips the availability flag only if it currently holds the
// opposite value.
func (s store) SetItemAvailable(id int64, available bool) error {
	res, err := s.q.Exec(`UPDATE items SET available=? WHERE id=? AND available=?`, available, id, !available)
	return affected(res, err, "item", id)
}

func (s store) DeleteItem(id int64) error {
	res, err := s.q.Exec(`DELETE FROM items WHERE id=?`, id)
	return affected(res, err, "item", id)
}

func (s store) GetItem(id int64, mode LookupMode) (ItemRecord, error) {
	rec, err := scanItem(s.q.QueryRow(itemSelect+` WHERE i.id=?`+mode.clause("i"), id))
	if err != nil {
		return ItemRecord{}, noRows(err, "item %d", id)
	}
	return rec, nil
}

func (s store) GetItemByBarcode(barcode string, mode LookupMode) (ItemRecord, error) {
	rec, err := scanItem(s.q.QueryRow(itemSelect+` WHERE i.barcode=?`+mode.clause("i"), barcode))
	if err != nil {
		return ItemRecord{}, noRows(err, "item with barcode %q", barcode)
	}
	return rec, nil
}

func (s store) ListItems(mode LookupMode) ([]ItemRecord, error) {
	return s.FindItems(ItemFilter{}, mode)
}

// FindItems lists items matching f ordered by id.
func (s store) FindItems(f ItemFilter, mode LookupMode) ([]ItemRecord, error) {
	query := itemSelect + ` WHERE 1=1`
	var args []any
	if f.Title != "" {
		query += ` AND LOWER(i.title) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(f.Title))
	}
	if f.AuthorFirstname != "" {
		query += ` AND LOWER(a.firstname) = LOWER(?)`
		args = append(args, f.AuthorFirstname)
	}
	if f.AuthorLastname != "" {
		query += ` AND LOWER(a.lastname) = LOWER(?)`
		args = append(args, f.AuthorLastname)
	}
	if f.Classification != "" {
		query += ` AND c.name = ?`
		args = append(args, f.Classification)
	}
	if f.ISBN != "" {
		query += ` AND l.isbn = ?`
		args = append(args, f.ISBN)
	}
	if f.Barcode != "" {
		query += ` AND i.barcode = ?`
		args = append(args, f.Barcode)
	}
	if f.Type != "" {
		query += ` AND i.item_type = ?`
		args = append(args, string(f.Type))
	}
	if f.AvailableOnly {
		query += ` AND i.available = 1`
	}
	query += mode.clause("i") + ` ORDER BY i.id`

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, dbErr("find items", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, dbErr("scan item", err)
		}
		items = append(items, rec)
	}
	return items, dbErr("find items", rows.Err())
}

// ---------------------------------------------------------------------------
// Rentals
// ---------------------------------------------------------------------------

// RentalFilter narrows rental listings. Zero fields are ignored; time ranges are
// half-open [From, To).
type RentalFilter struct {
	UserID          int64
	ItemID          int64
	RentedAt        time.Time
	RentedFrom      time.Time
	RentedTo        time.Time
	DueFrom         time.Time
	DueTo           time.Time
	Title           string // substring, case-insensitive
	AuthorFirstname string
	AuthorLastname  string
	Classification  string
	ISBN            string
	OpenOnly        bool
	OverdueAt       time.Time
}

const rentalSelect = `SELECT r.id,r.user_id,r.item_id,r.rental_date,r.due_date,r.return_date,r.late_fee,r.receipt,r.deleted,
        u.username,i.title,i.item_type
    FROM rentals r
    JOIN users u ON u.id = r.user_id
    JOIN items i ON i.id = r.item_id
    JOIN authors a ON a.id = i.author_id
    JOIN classifications c ON c.id = i.classification_id
    LEFT JOIN literature l ON l.item_id = i.id`

func scanRental(row rowScanner) (RentalRecord, error) {
	var (
		rec             RentalRecord
		rentedAt, dueAt int64
		returnedAt      sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.ItemID, &rentedAt, &dueAt, &returnedAt, &rec.LateFee,
		&rec.Receipt, &rec.Deleted, &rec.Username, &rec.ItemTitle, &rec.ItemType)
	if err != nil {
		return RentalRecord{}, err
	}
	rec.RentalDate = fromUnix(rentedAt)
	rec.DueDate = fromUnix(dueAt)
	if returnedAt.Valid {
		t := fromUnix(returnedAt.Int64)
		rec.ReturnDate = &t
	}
	return rec, nil
}

func (s store) InsertRental(rec RentalRecord) (int64, error) {
	res, err := s.stmt(s.stmts.addRental).Exec(rec.UserID, rec.ItemID, unixTime(rec.RentalDate), unixTime(rec.DueDate),
		nullUnix(rec.ReturnDate), rec.LateFee, rec.Receipt, rec.Deleted)
	if err != nil {
		return 0, dbErr("insert rental", err)
	}
	id, err := res.LastInsertId()
	return id, dbErr("insert rental", err)
}

func (s store) UpdateRental(rec RentalRecord) error {
	res, err := s.q.Exec(`UPDATE rentals SET user_id=?, item_id=?, rental_date=?, due_date=?, return_date=?,
        late_fee=?, receipt=?, deleted=? WHERE id=?`,
		rec.UserID, rec.ItemID, unixTime(rec.RentalDate), unixTime(rec.DueDate), nullUnix(rec.ReturnDate),
		rec.LateFee, rec.Receipt, rec.Deleted, rec.ID)
	return affected(res, err, "rental", rec.ID)
}

func (s store) DeleteRental(id int64) error {
	res, err := s.q.Exec(`DELETE FROM rentals WHERE id=?`, id)
	return affected(res, err, "rental", id)
}

func (s store) GetRental(id int64, mode LookupMode) (RentalRecord, error) {
	rec, err := scanRental(s.q.QueryRow(rentalSelect+` WHERE r.id=?`+mode.clause("r"), id))
	if err != nil {
		return RentalRecord{}, noRows(err, "rental %d", id)
	}
	return rec, nil
}

// FindRentals lists rentals matching f ordered by id.
func (s store) FindRentals(f RentalFilter, mode LookupMode) ([]RentalRecord, error) {
	query := rentalSelect + ` WHERE 1=1`
	var args []any
	add := func(cond string, arg any) {
		query += ` AND ` + cond
		args = append(args, arg)
	}
	if f.UserID != 0 {
		add(`r.user_id = ?`, f.UserID)
	}
	if f.ItemID != 0 {
		add(`r.item_id = ?`, f.ItemID)
	}
	if !f.RentedAt.IsZero() {
		add(`r.rental_date = ?`, unixTime(f.RentedAt))
	}
	if !f.RentedFrom.IsZero() {
		add(`r.rental_date >= ?`, unixTime(f.RentedFrom))
	}
	if !f.RentedTo.IsZero() {
		add(`r.rental_date < ?`, unixTime(f.RentedTo))
	}
	if !f.DueFrom.IsZero() {
		add(`r.due_date >= ?`, unixTime(f.DueFrom))
	}
	if !f.DueTo.IsZero() {
		add(`r.due_date < ?`, unixTime(f.DueTo))
	}
	if f.Title != "" {
		add(`LOWER(i.title) LIKE ? ESCAPE '\'`, likePattern(f.Title))
	}
	if f.AuthorFirstname != "" {
		add(`LOWER(a.firstname) = LOWER(?)`, f.AuthorFirstname)
	}
	if f.AuthorLastname != "" {
		add(`LOWER(a.lastname) = LOWER(?)`, f.AuthorLastname)
	}
	if f.Classification != "" {
		add(`c.name = ?`, f.Classification)
	}
	if f.ISBN != "" {
		add(`l.isbn = ?`, f.ISBN)
	}
	if f.OpenOnly {
		query += ` AND r.return_date IS NULL`
	}
	if !f.OverdueAt.IsZero() {
		add(`r.return_date IS NULL AND r.due_date < ?`, unixTime(f.OverdueAt))
	}
	query += mode.clause("r") + ` ORDER BY r.id`

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, dbErr("find rentals", err)
	}
	defer rows.Close()

	var rentals []RentalRecord
	for rows.Next() {
		rec, err := scanRental(rows)
		if err != nil {
			return nil, dbErr("scan rental", err)
		}
		rentals = append(rentals, rec)
	}
	return rentals, dbErr("find rentals", rows.Err())
}

// CountOpenRentals counts unreturned rentals of a user or an item.
func (s store) CountOpenRentals(column string, id int64) (int, error) {
	if column != "user_id" && column != "item_id" {
		return 0, fmt.Errorf("count rentals: unsupported column %q", column)
	}
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM rentals WHERE return_date IS NULL AND `+column+`=?`, id).Scan(&n)
	return n, dbErr("count rentals", err)
}
