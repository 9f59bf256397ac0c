// Command bootstrap-account seeds an initial account in the datastore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cliphive/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		email       string
		fullName    string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the account")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&fullName, "name", "", "Full name for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.Parse()

	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if jsonPath == "" && postgresDSN == "" {
		postgresDSN = strings.TrimSpace(os.Getenv("CLIPHIVE_POSTGRES_DSN"))
	}
	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if strings.TrimSpace(fullName) == "" {
		fatalf("--name is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, err := repo.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    email,
		FullName: fullName,
		Password: password,
	})
	switch {
	case errors.Is(err, storage.ErrUsernameTaken), errors.Is(err, storage.ErrEmailTaken):
		fmt.Printf("Account %s already exists; nothing to do.\n", strings.ToLower(strings.TrimSpace(username)))
		return
	case err != nil:
		fatalf("create account: %v", err)
	}

	fmt.Printf("Account %s (%s) created successfully.\n", user.Username, user.Email)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewStorage(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}
