package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"library-circulation/library"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	manager *library.LibraryManager
	dbPath  string
)

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// passwordFlag returns the --password value or prompts for one.
func passwordFlag(cmd *cobra.Command, prompt string) (string, error) {
	if cmd.Flags().Changed("password") {
		return cmd.Flags().GetString("password")
	}
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// run executes one command line. The database opened for it is closed on
// every path, including failed commands.
func run(args []string) error {
	manager = nil
	cmd := rootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if manager != nil {
		if cerr := manager.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// exitCode separates bad input (2) from everything else (1).
func exitCode(err error) int {
	if library.IsValidation(err) || errors.Is(err, library.ErrEntityNotFound) ||
		errors.Is(err, library.ErrRentalNotAllowed) || errors.Is(err, library.ErrDeleteNotAllowed) {
		return 2
	}
	return 1
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarycli",
		Short:         "Library circulation: users, items, rentals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := library.LoadConfig()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(logger)

			manager, err = library.NewLibraryManager(cfg)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			manager.SetLogger(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file (overrides LIBRARY_DB)")

	root.AddCommand(userCmd(), authorCmd(), classificationCmd(), itemCmd(), rentCmd(), returnCmd(), rentalCmd())
	return root
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}

func lookupMode(cmd *cobra.Command) library.LookupMode {
	all, _ := cmd.Flags().GetBool("all")
	deleted, _ := cmd.Flags().GetBool("deleted")
	switch {
	case deleted:
		return library.DeletedOnly
	case all:
		return library.IncludeDeleted
	default:
		return library.ActiveOnly
	}
}

func addModeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("all", false, "include soft-deleted rows")
	cmd.Flags().Bool("deleted", false, "only soft-deleted rows")
}

// ------------------ Users ------------------

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	var email, userType string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := library.ParseUserType(userType)
			if err != nil {
				return err
			}
			password, err := passwordFlag(cmd, fmt.Sprintf("Enter password for %s: ", args[0]))
			if err != nil {
				return err
			}
			u, err := manager.Users.CreateUser(args[0], password, email, t)
			if err != nil {
				return err
			}
			fmt.Printf("Added user '%s' with ID %d\n", u.Username(), u.ID())
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&userType, "type", string(library.UserTypePatron), "ADMIN, STAFF, PATRON, STUDENT, TEACHER or RESEARCHER")
	add.Flags().String("password", "", "password (prompted when omitted)")
	_ = add.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := manager.Users.ListUsers(lookupMode(cmd))
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No users registered.")
				return nil
			}
			fmt.Printf("%-5s %-20s %-30s %-11s %-8s %-10s %s\n", "ID", "Username", "Email", "Type", "Rentals", "Late fee", "Can rent")
			fmt.Println(strings.Repeat("-", 100))
			for _, u := range users {
				fmt.Printf("%-5d %-20s %-30s %-11s %3d/%-4d %-10s %t\n", u.ID(), u.Username(), u.Email(), u.Type(),
					u.CurrentRentals(), u.AllowedRentals(), u.LateFee().StringFixed(2), u.AllowedToRent())
			}
			return nil
		},
	}
	addModeFlags(list)

	show := &cobra.Command{
		Use:   "show <id|username>",
		Short: "Show a user and their rentals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := findUser(args[0], library.IncludeDeleted)
			if err != nil {
				return err
			}
			fmt.Printf("ID:        %d\n", u.ID())
			fmt.Printf("Username:  %s\n", u.Username())
			fmt.Printf("Email:     %s\n", u.Email())
			fmt.Printf("Type:      %s\n", u.Type())
			fmt.Printf("Rentals:   %d of %d\n", u.CurrentRentals(), u.AllowedRentals())
			fmt.Printf("Late fee:  %s\n", u.LateFee().StringFixed(2))
			fmt.Printf("Can rent:  %t\n", u.AllowedToRent())
			fmt.Printf("Deleted:   %t\n", u.Deleted())

			rentals, err := manager.Rentals.FindRentalsByUser(u.ID())
			if err != nil {
				return err
			}
			if len(rentals) > 0 {
				fmt.Println()
				printRentals(rentals)
			}
			return nil
		},
	}

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change username, email, type or password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var upd library.UserUpdate
			if cmd.Flags().Changed("username") {
				v, _ := cmd.Flags().GetString("username")
				upd.Username = &v
			}
			if cmd.Flags().Changed("email") {
				v, _ := cmd.Flags().GetString("email")
				upd.Email = &v
			}
			if cmd.Flags().Changed("type") {
				v, _ := cmd.Flags().GetString("type")
				t, err := library.ParseUserType(v)
				if err != nil {
					return err
				}
				upd.Type = &t
			}
			if reset, _ := cmd.Flags().GetBool("reset-password"); reset {
				password, err := readPassword(fmt.Sprintf("Enter new password for user %d: ", id))
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				upd.Password = &password
			}
			u, err := manager.Users.UpdateUser(id, upd)
			if err != nil {
				return err
			}
			fmt.Printf("Updated user '%s' (ID: %d)\n", u.Username(), u.ID())
			return nil
		},
	}
	update.Flags().String("username", "", "new username")
	update.Flags().String("email", "", "new email address")
	update.Flags().String("type", "", "new user type")
	update.Flags().Bool("reset-password", false, "prompt for a new password")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := manager.Users.SoftDeleteUser(id)
			if err != nil {
				return err
			}
			fmt.Printf("User '%s' deleted. Use 'user recover %d' to undo.\n", u.Username(), id)
			return nil
		},
	}

	recoverCmd := &cobra.Command{
		Use:   "recover <id>",
		Short: "Undo a soft delete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := manager.Users.RecoverUser(id)
			if err != nil {
				return err
			}
			fmt.Printf("User '%s' recovered.\n", u.Username())
			return nil
		},
	}

	purge := &cobra.Command{
		Use:   "purge <id>",
		Short: "Remove a user and their rental history for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := manager.Users.HardDeleteUser(id); err != nil {
				return err
			}
			fmt.Printf("User %d removed.\n", id)
			return nil
		},
	}

	pay := &cobra.Command{
		Use:   "pay <id> <amount>",
		Short: "Pay off part or all of a late fee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount: %s", args[1])
			}
			u, err := manager.Users.PayLateFee(id, amount)
			if err != nil {
				return err
			}
			fmt.Printf("Paid %s. '%s' still owes %s.\n", amount.StringFixed(2), u.Username(), u.LateFee().StringFixed(2))
			return nil
		},
	}

	cmd.AddCommand(add, list, show, update, del, recoverCmd, purge, pay)
	return cmd
}

func findUser(ref string, mode library.LookupMode) (*library.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return manager.Users.GetUser(id, mode)
	}
	return manager.Users.GetUserByUsername(ref, mode)
}

// ------------------ Authors & classifications ------------------

func authorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "author", Short: "Manage authors"}

	var description string
	add := &cobra.Command{
		Use:   "add <firstname> <lastname>",
		Short: "Add an author; pass \"\" for a missing name part",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := manager.Authors.CreateAuthor(args[0], args[1], description)
			if err != nil {
				return err
			}
			fmt.Printf("Added author '%s' with ID %d\n", a.FullName(), a.ID())
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "short description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List authors",
		RunE: func(cmd *cobra.Command, args []string) error {
			authors, err := manager.Authors.ListAuthors(lookupMode(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-40s %s\n", "ID", "Name", "Description")
			fmt.Println(strings.Repeat("-", 80))
			for _, a := range authors {
				fmt.Printf("%-5d %-40s %s\n", a.ID(), a.FullName(), a.Description())
			}
			return nil
		},
	}
	addModeFlags(list)

	cmd.AddCommand(add, list)
	return cmd
}

func classificationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "classification", Short: "Manage classifications"}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := manager.Classifications.CreateClassification(args[0], description)
			if err != nil {
				return err
			}
			fmt.Printf("Added classification '%s' with ID %d\n", c.Name(), c.ID())
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "short description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List classifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := manager.Classifications.ListClassifications(lookupMode(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-30s %s\n", "ID", "Name", "Description")
			fmt.Println(strings.Repeat("-", 70))
			for _, c := range cs {
				fmt.Printf("%-5d %-30s %s\n", c.ID(), c.Name(), c.Description())
			}
			return nil
		},
	}
	addModeFlags(list)

	cmd.AddCommand(add, list)
	return cmd
}

// ------------------ Items ------------------

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage items"}

	var (
		in                        library.ItemInput
		itemType, isbn            string
		ageRating                 int
		country, actors           string
		authorRef, classification string
	)
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := library.ParseItemType(itemType)
			if err != nil {
				return err
			}
			in.Title = args[0]
			in.Type = t
			if in.AuthorID, err = parseID(authorRef); err != nil {
				return err
			}
			c, err := manager.Classifications.GetClassificationByName(classification, library.ActiveOnly)
			if err != nil {
				return err
			}
			in.ClassificationID = c.ID()
			if t == library.ItemTypeFilm {
				in.Details = &library.Film{AgeRating: ageRating, Country: country, Actors: actors}
			} else {
				in.Details = &library.Literature{ISBN: isbn}
			}
			it, err := manager.Items.CreateItem(in)
			if err != nil {
				return err
			}
			fmt.Printf("Added item '%s' with ID %d and barcode %s\n", it.Title(), it.ID(), it.Barcode())
			return nil
		},
	}
	add.Flags().StringVar(&in.Barcode, "barcode", "", "unique barcode")
	add.Flags().StringVar(&itemType, "type", string(library.ItemTypeOtherBooks), "REFERENCE_LITERATURE, MAGAZINE, FILM, COURSE_LITERATURE or OTHER_BOOKS")
	add.Flags().StringVar(&authorRef, "author", "", "author ID")
	add.Flags().StringVar(&classification, "classification", "", "classification name")
	add.Flags().StringVar(&isbn, "isbn", "", "ISBN (literature)")
	add.Flags().IntVar(&ageRating, "age-rating", 0, "age rating (film)")
	add.Flags().StringVar(&country, "country", "", "production country (film)")
	add.Flags().StringVar(&actors, "actors", "", "actors (film)")
	_ = add.MarkFlagRequired("barcode")
	_ = add.MarkFlagRequired("author")
	_ = add.MarkFlagRequired("classification")

	list := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				items []*library.Item
				err   error
			)
			if available, _ := cmd.Flags().GetBool("available"); available {
				items, err = manager.Items.ListAvailableItems()
			} else {
				items, err = manager.Items.ListItems(lookupMode(cmd))
			}
			if err != nil {
				return err
			}
			printItems(items)
			return nil
		},
	}
	list.Flags().Bool("available", false, "only items on the shelf")
	addModeFlags(list)

	search := &cobra.Command{
		Use:   "search",
		Short: "Search items by title, author, classification, ISBN or type",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			title, _ := f.GetString("title")
			first, _ := f.GetString("author-first")
			last, _ := f.GetString("author-last")
			cls, _ := f.GetString("classification")
			isbn, _ := f.GetString("isbn")
			typ, _ := f.GetString("type")

			var (
				items []*library.Item
				err   error
			)
			switch {
			case f.Changed("title"):
				items, err = manager.Items.FindItemsByTitle(title)
			case f.Changed("author-first") || f.Changed("author-last"):
				items, err = manager.Items.FindItemsByAuthor(first, last)
			case f.Changed("classification"):
				items, err = manager.Items.FindItemsByClassification(cls)
			case f.Changed("isbn"):
				items, err = manager.Items.FindItemsByISBN(isbn)
			case f.Changed("type"):
				var t library.ItemType
				if t, err = library.ParseItemType(typ); err == nil {
					items, err = manager.Items.FindItemsByType(t)
				}
			default:
				return errors.New("give one of --title, --author-first/--author-last, --classification, --isbn, --type")
			}
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No items found.")
				return nil
			}
			fmt.Printf("Found %d item(s):\n", len(items))
			printItems(items)
			return nil
		},
	}
	search.Flags().String("title", "", "title substring")
	search.Flags().String("author-first", "", "author firstname")
	search.Flags().String("author-last", "", "author lastname")
	search.Flags().String("classification", "", "classification name")
	search.Flags().String("isbn", "", "exact ISBN")
	search.Flags().String("type", "", "item type")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an item, or remove it with --hard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if hard, _ := cmd.Flags().GetBool("hard"); hard {
				if err := manager.Items.HardDeleteItem(id); err != nil {
					return err
				}
				fmt.Printf("Item %d removed.\n", id)
				return nil
			}
			it, err := manager.Items.SoftDeleteItem(id)
			if err != nil {
				return err
			}
			fmt.Printf("Item '%s' deleted. Use 'item recover %d' to undo.\n", it.Title(), id)
			return nil
		},
	}
	del.Flags().Bool("hard", false, "remove the item and its rental history")

	recoverCmd := &cobra.Command{
		Use:   "recover <id>",
		Short: "Undo a soft delete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			it, err := manager.Items.RecoverItem(id)
			if err != nil {
				return err
			}
			fmt.Printf("Item '%s' recovered.\n", it.Title())
			return nil
		},
	}

	cmd.AddCommand(add, list, search, del, recoverCmd)
	return cmd
}

func printItems(items []*library.Item) {
	if len(items) == 0 {
		fmt.Println("No items in library.")
		return
	}
	fmt.Printf("%-5s %-30s %-25s %-18s %-12s %-10s\n", "ID", "Title", "Author", "Type", "Barcode", "Available")
	fmt.Println(strings.Repeat("-", 105))
	for _, it := range items {
		fmt.Println(library.PrettyItem(it))
	}
}

// ------------------ Circulation ------------------

func rentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rent <username> <barcode>",
		Short: "Lend an item to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordFlag(cmd, "Enter your password: ")
			if err != nil {
				return err
			}
			if _, err := manager.Users.Authenticate(args[0], password); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			r, err := manager.RentItem(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Print(r.Receipt())
			return nil
		},
	}
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	return cmd
}

func returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <barcode>",
		Short: "Take an item back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := manager.ReturnItem(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("'%s' returned by %s.\n", r.ItemTitle(), r.Username())
			if r.LateFee().IsPositive() {
				fmt.Printf("Returned late: a fee of %s was added to the account.\n", r.LateFee().StringFixed(2))
			}
			return nil
		},
	}
}

func rentalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rental", Short: "Inspect rentals"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List rentals",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var (
				rentals []*library.Rental
				err     error
			)
			switch {
			case f.Changed("overdue"):
				rentals, err = manager.Rentals.OverdueRentals()
			case f.Changed("day"):
				day, _ := f.GetString("day")
				var t time.Time
				if t, err = time.ParseInLocation(time.DateOnly, day, time.Local); err != nil {
					return fmt.Errorf("invalid day %q, want YYYY-MM-DD", day)
				}
				rentals, err = manager.Rentals.FindRentalsByDay(t)
			case f.Changed("due"):
				day, _ := f.GetString("due")
				var t time.Time
				if t, err = time.ParseInLocation(time.DateOnly, day, time.Local); err != nil {
					return fmt.Errorf("invalid day %q, want YYYY-MM-DD", day)
				}
				rentals, err = manager.Rentals.FindRentalsDueOn(t)
			case f.Changed("user"):
				ref, _ := f.GetString("user")
				var u *library.User
				if u, err = findUser(ref, library.IncludeDeleted); err == nil {
					rentals, err = manager.Rentals.FindRentalsByUser(u.ID())
				}
			case f.Changed("item"):
				ref, _ := f.GetString("item")
				var id int64
				if id, err = parseID(ref); err == nil {
					rentals, err = manager.Rentals.FindRentalsByItem(id)
				}
			case f.Changed("title"):
				title, _ := f.GetString("title")
				rentals, err = manager.Rentals.FindRentalsByTitle(title)
			default:
				rentals, err = manager.Rentals.ListRentals(lookupMode(cmd))
			}
			if err != nil {
				return err
			}
			printRentals(rentals)
			return nil
		},
	}
	list.Flags().Bool("overdue", false, "only unreturned rentals past their due date")
	list.Flags().String("day", "", "rented on this day (YYYY-MM-DD)")
	list.Flags().String("due", "", "due on this day (YYYY-MM-DD)")
	list.Flags().String("user", "", "user ID or username")
	list.Flags().String("item", "", "item ID")
	list.Flags().String("title", "", "item title substring")
	addModeFlags(list)

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a rental and its receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			r, err := manager.Rentals.GetRental(id, library.IncludeDeleted)
			if err != nil {
				return err
			}
			fmt.Printf("Status:    %s\n", r.Status(manager.Rentals.Now()))
			if at, ok := r.RentalReturnDate(); ok {
				fmt.Printf("Returned:  %s\n", at.Format(time.DateTime))
			}
			fmt.Printf("Late fee:  %s\n\n", r.LateFee().StringFixed(2))
			fmt.Print(r.Receipt())
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func printRentals(rentals []*library.Rental) {
	if len(rentals) == 0 {
		fmt.Println("No rentals found.")
		return
	}
	fmt.Printf("%-5s %-20s %-30s %-19s %-19s %-9s %s\n", "ID", "User", "Title", "Rented", "Due", "Status", "Fee")
	fmt.Println(strings.Repeat("-", 120))
	now := manager.Rentals.Now()
	for _, r := range rentals {
		fmt.Println(library.PrettyRental(r, now))
	}
}
