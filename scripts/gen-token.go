package main

import (
	"fmt"
	"os"

	"github.com/scanbridge/relay-server-go/internal/util"
)

// Prints a fresh bearer token and the actor id it resolves to, for seeding
// owned sessions from the command line.
func main() {
	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token: %s\n", token)
	fmt.Printf("actor: %s\n", util.HashToken(token))
}
