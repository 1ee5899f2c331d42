package seed

import (
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// EnsureAdmin makes sure the configured admin user exists so a fresh
// database is sign-in-able. Existing users are left untouched.
func EnsureAdmin(db *sqlx.DB, name, email, password string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		log.Printf("admin seed skipped: email or password not configured")
		return
	}

	var exists bool
	if err := db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email); err != nil {
		log.Printf("unable to check for admin user: %v", err)
		return
	}
	if exists {
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("unable to hash admin password: %v", err)
		return
	}
	if _, err := db.Exec(`INSERT INTO users (name, email, password) VALUES ($1, $2, $3)`, name, email, hashed); err != nil {
		log.Printf("unable to seed admin user: %v", err)
		return
	}
	log.Printf("seeded admin user %s", email)
}
