package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/Mathfer/Bot-gemini-middleware/internal/auth"
)

func main() {
	quiet := flag.Bool("quiet", false, "print only the token")
	flag.Parse()

	token, err := auth.GenerateToken()
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	if *quiet {
		fmt.Println(token)
		return
	}

	fmt.Println("=== Relay Webhook Token ===")
	fmt.Println()
	fmt.Printf("  Fingerprint: %s\n", auth.Fingerprint(token))
	fmt.Println()
	fmt.Println("  Token (set TOKEN_ESPERADO to this value; it will NOT be shown again):")
	fmt.Printf("  %s\n", token)
	fmt.Println()
	fmt.Println("  Configure the messaging platform to send:")
	fmt.Printf("  Authorization: Bearer %s\n", token)
	fmt.Println()
	fmt.Println("===========================")
}
