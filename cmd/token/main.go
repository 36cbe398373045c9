// Command token signs an API bearer token with JWT_SECRET for an operator,
// supervisor or admin.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	webAdapter "inventory-engine/internal/adapters/web"
	"inventory-engine/internal/config"
)

func main() {
	user := flag.String("user", "", "user id recorded as created_by / approved_by")
	role := flag.String("role", webAdapter.RoleOperator, "operator, supervisor or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	switch *role {
	case webAdapter.RoleOperator, webAdapter.RoleSupervisor, webAdapter.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be provided")
		os.Exit(1)
	}

	tok, err := webAdapter.IssueToken(cfg.Server.JWTSecret, *user, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
