// Command token issues a signed bearer token for local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CARBON_CONFIG"), "path to a config file")
	role := flag.String("role", string(auth.RoleBuyer), "manager, verifier or buyer")
	user := flag.String("user", "", "user id (random when empty)")
	org := flag.String("org", "", "organization id")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret is required")
	}

	userID := uuid.New()
	if *user != "" {
		if userID, err = uuid.Parse(*user); err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
	}

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.TokenTTL)
	token, err := tokens.Issue(auth.Principal{UserID: userID, OrgID: *org, Role: auth.Role(*role)})
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
