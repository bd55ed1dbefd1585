package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tutor_gateway/internal/utils"
)

func newProvidersSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <provider-id|name>",
		Short: "Replace a provider's API key",
		Long:  "Read a new API key from the terminal (without echo) or from stdin and store it encrypted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return errors.New("empty API key")
			}

			st, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := findProvider(cmd.Context(), st.providers, args[0])
			if err != nil {
				return err
			}
			p.APIKey = key
			if err := st.providers.Update(cmd.Context(), p); err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "%s key for %s set (%s)\n", color.GreenString("✓"), p.ID, utils.Fingerprint(key))
			return nil
		},
	}
}

// readSecret reads one line from in, disabling echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
