// Command token mints a bearer token for local testing. Production tokens
// come from the identity service that shares the JWT secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/security"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	userID := flag.String("user", "", "User id (uuid); a random one is generated when empty")
	role := flag.String("role", string(domain.RoleBuyer), "BUYER, SUPPLIER, SITE_MANAGER or ADMIN")
	ttl := flag.Duration("ttl", 0, "Token lifetime; defaults to the configured access token expiry")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	uid := uuid.New()
	if *userID != "" {
		if uid, err = uuid.Parse(*userID); err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
	}
	expiry := cfg.AccessTokenTTL()
	if *ttl > 0 {
		expiry = *ttl
	}

	token, err := security.NewTokenManager(cfg.JWT.Secret, expiry).GenerateAccessToken(uid, domain.Role(*role))
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "user=%s role=%s expires=%s\n", uid, *role, time.Now().Add(expiry).Format(time.RFC3339))
	fmt.Println(token)
}
