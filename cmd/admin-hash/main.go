// Command admin-hash reads an admin password from stdin and prints the bcrypt
// hash to put in ADMIN_PASSWORD_HASH.
//
//	printf '%s' 's3cret' | go run ./cmd/admin-hash
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dealroom/backend/internal/auth"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatal("failed to read password from stdin", zap.Error(err))
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal("failed to hash password", zap.Error(err))
	}
	fmt.Println(hash)
}
