// Command token issues a signed access token for local testing.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/event-ticketing/internal/auth"
	"github.com/example/event-ticketing/internal/config"
)

func main() {
	userID := pflag.String("user-id", "", "subject of the token")
	email := pflag.String("email", "", "email claim")
	role := pflag.String("role", auth.RoleUser, "user or organizer")
	secret := pflag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret")
	expiry := pflag.Duration("expiry", time.Hour, "token lifetime")
	pflag.Parse()

	if *userID == "" {
		fail("--user-id is required")
	}
	if len(*secret) < config.MinJWTSecretLength {
		fail(fmt.Sprintf("--secret must be at least %d characters long", config.MinJWTSecretLength))
	}
	if !auth.ValidRole(*role) {
		fail(fmt.Sprintf("unknown role %q", *role))
	}

	token, expiresAt, err := auth.NewJWTService(*secret, *expiry).IssueToken(*userID, *email, *role)
	if err != nil {
		fail(err.Error())
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "token:", msg)
	os.Exit(2)
}
