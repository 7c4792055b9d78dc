package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-circulation/library"

	"github.com/spf13/cobra"
)

// Columns of the import file. The first row is a header and is skipped.
const (
	colTitle = iota
	colType
	colBarcode
	colAuthorFirst
	colAuthorLast
	colClassification
	colISBN
	colAgeRating
	colCountry
	colActors
	numCols
)

func main() {
	var (
		dbPath string
		fresh  bool
	)
	cmd := &cobra.Command{
		Use:          "import_items <file.csv>",
		Short:        "Bulk-load items, creating missing authors and classifications",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := library.LoadConfig()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if fresh {
				cleanDatabase(cfg.DBPath)
			}

			manager, err := library.NewLibraryManager(cfg)
			if err != nil {
				return fmt.Errorf("error creating database: %w", err)
			}
			defer manager.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("error reading import file: %w", err)
			}
			defer f.Close()

			fmt.Printf("Importing items from %s...\n", args[0])
			successCount, errorCount, err := importItems(manager, f, os.Stdout)
			if err != nil {
				return err
			}

			fmt.Printf("\nImport complete!\n")
			fmt.Printf("Successfully imported: %d items\n", successCount)
			fmt.Printf("Errors: %d\n", errorCount)

			if successCount > 0 {
				fmt.Println("\nItems in library:")
				items, err := manager.Items.ListItems(library.ActiveOnly)
				if err != nil {
					fmt.Printf("Error retrieving items: %v\n", err)
					return nil
				}
				fmt.Printf("%-5s %-30s %-25s %-18s %-12s %-10s\n", "ID", "Title", "Author", "Type", "Barcode", "Available")
				fmt.Println(strings.Repeat("-", 105))
				for _, it := range items {
					fmt.Println(library.PrettyItem(it))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides LIBRARY_DB)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "remove the existing database first")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cleanDatabase(path string) {
	fmt.Println("Cleaning up existing database files...")
	for _, file := range []string{path, path + "-shm", path + "-wal"} {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
		}
	}
	fmt.Println("Database cleanup complete.")
}

// importItems adds one item per CSV row. Bad rows are reported to out and
// counted; only an unreadable file aborts the import.
func importItems(manager *library.LibraryManager, r io.Reader, out io.Writer) (successCount, errorCount int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = numCols
	reader.TrimLeadingSpace = true

	authors := map[string]int64{}
	classifications := map[string]int64{}

	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				fmt.Fprintf(out, "Line %d: ERROR - %v\n", line, err)
				errorCount++
				continue
			}
			return successCount, errorCount, fmt.Errorf("reading line %d: %w", line, err)
		}
		if line == 1 {
			continue
		}

		fmt.Fprintf(out, "Importing: %s [%s]... ", row[colTitle], row[colBarcode])
		it, err := importRow(manager, row, authors, classifications)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", it.ID())
		successCount++
	}
	return successCount, errorCount, nil
}

func importRow(manager *library.LibraryManager, row []string, authors, classifications map[string]int64) (*library.Item, error) {
	itemType, err := library.ParseItemType(row[colType])
	if err != nil {
		return nil, err
	}
	authorID, err := authorFor(manager, row[colAuthorFirst], row[colAuthorLast], authors)
	if err != nil {
		return nil, err
	}
	classificationID, err := classificationFor(manager, row[colClassification], classifications)
	if err != nil {
		return nil, err
	}

	in := library.ItemInput{
		Title:            row[colTitle],
		Type:             itemType,
		Barcode:          row[colBarcode],
		AuthorID:         authorID,
		ClassificationID: classificationID,
	}
	if itemType == library.ItemTypeFilm {
		film := &library.Film{Country: row[colCountry], Actors: row[colActors]}
		if v := strings.TrimSpace(row[colAgeRating]); v != "" {
			if film.AgeRating, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("age rating %q: %w", v, err)
			}
		}
		in.Details = film
	} else {
		in.Details = &library.Literature{ISBN: row[colISBN]}
	}
	return manager.Items.CreateItem(in)
}

// authorFor reuses an active author with exactly this name or creates one.
func authorFor(manager *library.LibraryManager, first, last string, cache map[string]int64) (int64, error) {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	key := strings.ToLower(first + "\x00" + last)
	if id, ok := cache[key]; ok {
		return id, nil
	}

	found, err := manager.Authors.FindAuthors(first, last)
	if err != nil {
		return 0, err
	}
	for _, a := range found {
		if strings.EqualFold(a.Firstname(), first) && strings.EqualFold(a.Lastname(), last) {
			cache[key] = a.ID()
			return a.ID(), nil
		}
	}

	a, err := manager.Authors.CreateAuthor(first, last, "")
	if err != nil {
		return 0, err
	}
	cache[key] = a.ID()
	return a.ID(), nil
}

func classificationFor(manager *library.LibraryManager, name string, cache map[string]int64) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := cache[key]; ok {
		return id, nil
	}

	c, err := manager.Classifications.GetClassificationByName(name, library.ActiveOnly)
	if errors.Is(err, library.ErrEntityNotFound) {
		c, err = manager.Classifications.CreateClassification(name, "")
	}
	if err != nil {
		return 0, err
	}
	cache[key] = c.ID()
	return c.ID(), nil
}
