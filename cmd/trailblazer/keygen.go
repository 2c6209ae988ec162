package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trailblazer_ai/internal/storage"
)

var keySize int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random credential encryption key",
	Long:  "Prints a base64 AES key suitable for CREDENTIAL_ENCRYPTION_KEY or a per-provider key.",
	// no config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := storage.GenerateKey(keySize)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keySize, "size", 32, "key size in bytes (16, 24 or 32)")
	rootCmd.AddCommand(keygenCmd)
}
