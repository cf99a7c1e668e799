package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/db"
	"github.com/opsdesk/opsdesk/internal/members"
	"github.com/opsdesk/opsdesk/internal/orgs"
	"github.com/opsdesk/opsdesk/internal/validation"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "reset-password":
		return runResetPassword(args[1:])
	case "transfer-ownership":
		return runTransferOwnership(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  opsdesk admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  opsdesk admin transfer-ownership --org <slug> --email user@example.com [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  opsdesk admin migrate [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to OD_DB_DSN.")
}

// adminFlags parses args, resolving --db-dsn from OD_DB_DSN. It returns a non-zero
// exit code when parsing failed.
func adminFlags(fs *flag.FlagSet, args []string, dbDSN *string) int {
	fs.SetOutput(os.Stderr)
	fs.StringVar(dbDSN, "db-dsn", "", "Postgres DSN (defaults to OD_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return -1
		}
		return 2
	}

	if *dbDSN == "" {
		*dbDSN = strings.TrimSpace(os.Getenv("OD_DB_DSN"))
	}
	if *dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set OD_DB_DSN)")
		return 2
	}
	return 0
}

func parseExit(code int) int {
	if code < 0 {
		return 0
	}
	return code
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, bool) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)

	var email, password, dbDSN string
	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")

	if code := adminFlags(fs, args, &dbDSN); code != 0 {
		return parseExit(code)
	}

	email = validation.NormalizeEmail(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}
	if err := auth.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid password: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	userID, err := auth.NewService(pool).SetPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	_ = audit.NewWriter(pool).LogPasswordReset(ctx, userID)

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runTransferOwnership(args []string) int {
	fs := flag.NewFlagSet("transfer-ownership", flag.ContinueOnError)

	var orgSlug, email, dbDSN string
	fs.StringVar(&orgSlug, "org", "", "Organization slug")
	fs.StringVar(&email, "email", "", "Email of the member receiving ownership")

	if code := adminFlags(fs, args, &dbDSN); code != 0 {
		return parseExit(code)
	}

	orgSlug = strings.TrimSpace(orgSlug)
	email = validation.NormalizeEmail(email)
	if orgSlug == "" || email == "" {
		fmt.Fprintln(os.Stderr, "--org and --email are required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	org, err := orgs.NewService(pool).GetBySlug(ctx, orgSlug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find organization %q: %v\n", orgSlug, err)
		return 1
	}

	userID, err := auth.NewService(pool).UserIDByEmail(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find user %q: %v\n", email, err)
		return 1
	}

	member, err := members.NewService(pool).GrantOwnership(ctx, org.ID, userID)
	if err != nil {
		if errors.Is(err, members.ErrMemberNotFound) {
			fmt.Fprintf(os.Stderr, "%s is not a member of %s\n", email, orgSlug)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to transfer ownership: %v\n", err)
		return 1
	}
	_ = audit.NewWriter(pool).LogOwnershipTransferred(ctx, org.ID, member.ID, userID)

	fmt.Fprintf(os.Stdout, "%s is now an owner of %s.\n", email, orgSlug)
	return 0
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)

	var dbDSN string
	if code := adminFlags(fs, args, &dbDSN); code != 0 {
		return parseExit(code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Migrations applied.")
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
