package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/cloudnine/checkin-server-go/internal/util"
)

// Prints the credentials needed to seed a staff row: a bcrypt hash of the
// given password, plus a fresh API token and the hash stored in
// staff.api_token_hash. The raw token is shown once; only the hash is stored.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/provision-staff.go <password>\n")
		os.Exit(1)
	}

	password := os.Args[1]
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	apiToken, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("password_hash:  %s\n", passwordHash)
	fmt.Printf("api_token:      %s\n", apiToken)
	fmt.Printf("api_token_hash: %s\n", util.HashToken(apiToken))
}
