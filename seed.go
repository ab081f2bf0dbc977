package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"LIBCAT-backend/internal/catalog"
	"LIBCAT-backend/internal/users"
)

var (
	seedThemes     = []string{"Action", "Science", "History", "Fiction", "Romance", "Mystery", "Fantasy", "Thriller"}
	seedPublishers = []string{"Penguin Books", "Simon & Schuster", "Hachette", "HarperCollins", "Random House", "Oxford Press", "Cambridge Press"}
	seedLocations  = []string{"Aisle A", "Aisle B", "Aisle C", "Aisle D", "Aisle E", "Shelf 1", "Shelf 2", "Shelf 3", "Shelf 4", "Shelf 5"}
	seedAuthors    = []string{
		"George Orwell", "Jane Austen", "Mark Twain", "Ernest Hemingway", "F. Scott Fitzgerald",
		"Harper Lee", "Stephen King", "J.R.R. Tolkien", "C.S. Lewis", "Roald Dahl",
		"Isaac Asimov", "Arthur C. Clarke", "Philip K. Dick", "Ray Bradbury", "Ursula K. Le Guin",
		"Margaret Atwood", "Toni Morrison", "Gabriel García Márquez", "Paulo Coelho", "Haruki Murakami",
	}
	seedKeywords = []string{
		"adventure", "mystery", "love", "drama", "sci-fi", "fantasy", "horror", "romance",
		"thriller", "classic", "modern", "historical", "philosophical", "psychological", "magical",
	}
	seedTitles = []string{
		"The Great Gatsby", "To Kill a Mockingbird", "1984", "Pride and Prejudice", "The Hobbit",
		"Harry Potter and the Sorcerer's Stone", "The Lord of the Rings", "The Catcher in the Rye",
		"Brave New World", "Wuthering Heights", "Jane Eyre", "The Odyssey", "The Iliad", "Don Quixote",
		"Moby Dick", "War and Peace", "Crime and Punishment", "The Brothers Karamazov", "Anna Karenina",
		"Les Misérables",
	}
)

func seedUsers() []users.RegisterRequest {
	admin := users.RoleAdmin
	return []users.RegisterRequest{
		{FirstName: "Admin", LastName: "User", Age: 30, State: users.StatePro, Username: "admin",
			Email: "admin@libcat.local", Password: "admin-pass", Address: "123 Admin St", Phone: "555-0001",
			Role: &admin, IsSubscribed: true},
		{FirstName: "John", LastName: "Subscriber", Age: 25, State: users.StateStudent, Username: "john_sub",
			Email: "john@libcat.local", Password: "john-pass", Address: "456 User Ave", Phone: "555-0002",
			IsSubscribed: true},
		{FirstName: "Jane", LastName: "Reader", Age: 28, State: users.StatePro, Username: "jane_sub",
			Email: "jane@libcat.local", Password: "jane-pass", Address: "789 Reader Blvd", Phone: "555-0003",
			IsSubscribed: true},
	}
}

func seedCmd() *cobra.Command {
	var copies int
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "insert demo users and books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()
			return a.seed(cmd.Context(), copies, force)
		},
	}
	cmd.Flags().IntVar(&copies, "copies", 3, "copies per book")
	cmd.Flags().BoolVar(&force, "force", false, "seed books even if the catalog is not empty")
	return cmd
}

func (a *app) seed(ctx context.Context, copies int, force bool) error {
	for _, u := range seedUsers() {
		res, err := a.users.Register(ctx, u)
		var api *users.APIError
		if errors.As(err, &api) && api.Code == users.CodeConflict {
			a.log.Warn("user already exists", zap.String("email", u.Email))
			continue
		}
		if err != nil {
			return err
		}
		a.log.Info("user seeded", zap.Int64("user_id", res.UserID), zap.String("email", res.Email))
	}

	existing, err := a.books.ListBooks(ctx, catalog.BookSearchQuery{}, catalog.Page{Limit: 1})
	if err != nil {
		return err
	}
	if existing.Total > 0 && !force {
		a.log.Info("catalog not empty, skipping books", zap.Int64("books", existing.Total))
		return nil
	}

	for i, title := range seedTitles {
		req := catalog.CreateBookRequest{
			Title:     title,
			Theme:     lo.ToPtr(lo.Sample(seedThemes)),
			Publisher: lo.ToPtr(lo.Sample(seedPublishers)),
			Poster:    lo.ToPtr(fmt.Sprintf("https://covers.example.org/b/%d-M.jpg", i+1)),
			Authors:   lo.Samples(seedAuthors, 1+i%3),
			Keywords:  lo.Samples(seedKeywords, 2+i%3),
			Copies:    copies,
			Locations: lo.Times(copies, func(int) string { return lo.Sample(seedLocations) }),
		}
		b, err := a.books.CreateBook(ctx, req)
		if err != nil {
			return fmt.Errorf("seed %q: %w", title, err)
		}
		a.log.Info("book seeded", zap.Int64("book_id", b.BookID), zap.String("code", b.CatalogCode))
	}
	return nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "manage users"}

	var in users.RegisterRequest
	var state, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "register a user (prompts for the password)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			in.Password = pw
			in.State = users.State(state)
			if role != "" {
				r := users.Role(role)
				in.Role = &r
			}

			a, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.users.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", res.UserID, res.Email)
			return nil
		},
	}
	f := add.Flags()
	f.StringVar(&in.FirstName, "fname", "", "first name")
	f.StringVar(&in.LastName, "lname", "", "last name")
	f.IntVar(&in.Age, "age", 0, "age")
	f.StringVar(&state, "state", string(users.StatePro), "kid | student | pro")
	f.StringVar(&in.Username, "username", "", "login name")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.Address, "address", "", "postal address")
	f.StringVar(&in.Phone, "phone", "", "phone number")
	f.StringVar(&role, "role", "", "admin | user")
	f.BoolVar(&in.IsSubscribed, "subscribed", false, "subscribed to the newsletter")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}

// 端末ならエコーなしで読む。パイプ入力は1行読む
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
