// Command generate-jwt-keys creates the ECDSA P-256 key used to sign admin tokens.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "generate-jwt-keys",
		Usage: "generate the JWT signing key for the admin console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "jwt-private-key.pem",
				Usage: "file the PEM key is written to; empty skips the file",
			},
		},
		Action: func(c *cli.Context) error {
			privateKeyPEM, err := generateKey()
			if err != nil {
				return err
			}

			fmt.Println("Generated ECDSA P-256 key pair for JWT signing.")
			fmt.Println("\nAdd this to your .env file as JWT_SECRET:")
			fmt.Println("----------------------------------------")
			fmt.Printf("JWT_SECRET=%s\n", envLine(privateKeyPEM))

			if out := c.String("out"); out != "" {
				if err := os.WriteFile(out, privateKeyPEM, 0600); err != nil {
					return fmt.Errorf("failed to write private key file: %w", err)
				}
				fmt.Printf("\nPrivate key saved to: %s\n", out)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func generateKey() ([]byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	}), nil
}

// envLine escapes newlines so the key fits on one .env line
func envLine(pemBytes []byte) string {
	return strings.ReplaceAll(strings.TrimSpace(string(pemBytes)), "\n", `\n`)
}
