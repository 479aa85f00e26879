// Command authgate-migrate manages the user database schema.
//
// Usage:
//
//	authgate-migrate [-env .env] up
//	authgate-migrate [-env .env] down
//	authgate-migrate [-env .env] grant-role <user-id> <role>
//
// DATABASE_URL is read from the environment or the dotenv file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/userstore"
)

var errUsage = errors.New("usage: authgate-migrate [-env file] up|down|grant-role <user-id> <role>")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "authgate-migrate: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("authgate-migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	envFile := fs.String("env", ".env", "dotenv file to read DATABASE_URL from")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	switch rest[0] {
	case "up", "down":
		if len(rest) != 1 {
			return errUsage
		}
	case "grant-role":
		if len(rest) != 3 {
			return errUsage
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}

	dsn, err := config.LoadDatabaseURL(*envFile)
	if err != nil {
		return err
	}
	db, dialect, err := userstore.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	switch rest[0] {
	case "grant-role":
		userID, role := rest[1], rest[2]
		if err := userstore.NewSQLStore(db, dialect).AssignRole(ctx, userID, role); err != nil {
			return fmt.Errorf("grant %s to %s: %w", role, userID, err)
		}
		fmt.Fprintf(out, "granted %s to %s\n", role, userID)
	default:
		if err := userstore.Migrate(db, dialect, userstore.Direction(rest[0])); err != nil {
			return err
		}
		fmt.Fprintf(out, "migrations %s applied (%s)\n", rest[0], dialect)
	}
	return nil
}
