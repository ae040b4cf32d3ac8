package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/john-matlock-eng/journal-vault/crypto"
	"github.com/spf13/cobra"
)

var outputFile string

func init() {
	keysCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default is stdout)")
	rootCmd.AddCommand(keysCmd)
}

// keysCmd generates the X25519 keypair for the AI analysis consumer. The
// public half goes into the server config; the private half belongs to
// the analysis service only.
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate an X25519 keypair for the AI analysis consumer",
	Long:  "Generate an X25519 keypair. Configure the public key as encryption.aiPublicKey; hand the private key to the analysis service.",
	Run: func(cmd *cobra.Command, args []string) {
		kp, err := crypto.GenerateKeyPair()
		check(err)
		defer kp.Destroy()

		publicB64 := kp.PublicKeyBase64()
		fingerprint, fErr := crypto.Fingerprint(publicB64)
		check(fErr)

		keysJson := map[string]interface{}{
			"type":        "journal_vault_ai_consumer_x25519",
			"publicKey":   publicB64,
			"publicKeyId": fingerprint,
			"privateKey":  kp.PrivateKeyBase64(),
			"created":     time.Now().UnixMilli(),
		}
		fileBytes, err := json.MarshalIndent(keysJson, "", "  ")
		check(err)
		if outputFile != "" {
			// fail if file already exists
			if _, err := os.Stat(outputFile); !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("File already exists: %s\n", outputFile)
				os.Exit(1)
			}
			err = os.WriteFile(outputFile, fileBytes, 0600)
			check(err)
			fmt.Printf("Output file: %s\n", outputFile)
		} else {
			fmt.Printf("\n%s\n", string(fileBytes))
		}
	},
}
