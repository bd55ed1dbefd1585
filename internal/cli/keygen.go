package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutor_gateway/internal/storage"
)

func newKeygenCmd() *cobra.Command {
	var (
		size  int
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random ENCRYPTION_KEY",
		Long:  "Generate a random base64 AES key for encrypting provider API keys at rest.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := storage.GenerateKey(size)
			if err != nil {
				return err
			}
			if quiet {
				printf(cmd.OutOrStdout(), "%s\n", key)
				return nil
			}
			printf(cmd.OutOrStdout(), "%s %s\n", color.CyanString("ENCRYPTION_KEY="), key)
			printf(cmd.ErrOrStderr(), "%s changing the key makes stored API keys unreadable\n", color.YellowString("⚠"))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 32, "key size in bytes (16, 24 or 32)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key")
	return cmd
}
