package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutor_gateway/internal/config"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect and manage configured providers",
		Long:  "Work directly against the gateway database configured through DATABASE_DRIVER and DATABASE_URL.",
	}
	cmd.AddCommand(newProvidersListCmd())
	cmd.AddCommand(newProvidersSeedCmd())
	cmd.AddCommand(newProvidersTestCmd())
	cmd.AddCommand(newProvidersSetKeyCmd())
	return cmd
}

func newProvidersListCmd() *cobra.Command {
	var withModels bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.providers.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				printf(cmd.OutOrStdout(), "No providers configured\n")
				return nil
			}

			var modelsByProvider map[string][]*models.ManagedModel
			if withModels {
				modelsByProvider = make(map[string][]*models.ManagedModel, len(list))
				for _, p := range list {
					ms, err := st.models.ListByProvider(cmd.Context(), p.ID)
					if err != nil {
						return err
					}
					modelsByProvider[p.ID] = ms
				}
			}
			renderProviders(cmd.OutOrStdout(), list, modelsByProvider)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withModels, "models", false, "also list each provider's managed models")
	return cmd
}

func newProvidersSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Create or update providers from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := config.LoadProviderSeeds(args[0])
			if err != nil {
				return err
			}

			st, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			for _, seed := range seeds {
				p := seed.Provider()
				created, err := storage.SeedProvider(cmd.Context(), st.providers, st.models, p, seed.ManagedModels(p.ID))
				if err != nil {
					return fmt.Errorf("seeding %s: %w", p.ID, err)
				}
				verb := "updated"
				if created {
					verb = "created"
				}
				printf(out, "%s %s %s (%s)\n", color.GreenString("✓"), verb, p.ID, p.Type)
			}
			return nil
		},
	}
}

func newProvidersTestCmd() *cobra.Command {
	var (
		model   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test <provider-id|name>",
		Short: "Send a one-token chat to a provider and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := findProvider(cmd.Context(), st.providers, args[0])
			if err != nil {
				return err
			}
			if model == "" {
				model = defaultModel(cmd.Context(), st.models, p)
			}

			dispatcher := providers.NewDispatcher(providers.WithAdapter(providers.Adapter{
				GoogleSystemPolicy: providers.ParseGoogleSystemPolicy(cfg.Provider.GoogleSystemPolicy),
			}))
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			result := dispatcher.TestConnection(ctx, p.Normalize(), model)

			latency := result.LatencyMs
			if err := st.providers.UpdateStatus(cmd.Context(), p.ID, result.Status, &latency); err != nil {
				return err
			}

			renderConnectionResult(cmd.OutOrStdout(), p, model, result)
			if result.Status != models.ProviderStatusConnected {
				return errors.New("connection test failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to test with")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "test timeout")
	return cmd
}

// findProvider resolves ref as a provider ID, then as a display name.
func findProvider(ctx context.Context, repo *storage.ProviderRepository, ref string) (*models.Provider, error) {
	p, err := repo.GetByID(ctx, ref)
	if errors.Is(err, storage.ErrProviderNotFound) {
		p, err = repo.GetByName(ctx, ref)
	}
	if errors.Is(err, storage.ErrProviderNotFound) {
		return nil, fmt.Errorf("provider %s not found", ref)
	}
	return p, err
}

func defaultModel(ctx context.Context, repo *storage.ManagedModelRepository, p *models.Provider) string {
	m, err := repo.FirstEnabledChat(ctx, p.ID)
	if err == nil {
		return m.Name
	}
	return models.DefaultChatModel(p.Type)
}

func renderProviders(w io.Writer, list []*models.Provider, modelsByProvider map[string][]*models.ManagedModel) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPROTOCOL\tBASE URL\tKEY\tENABLED\tSTATUS")
	for _, p := range list {
		key := "-"
		if p.APIKey != "" {
			key = utils.Fingerprint(p.APIKey)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Type, p.Protocol, p.BaseURL, key, enabledLabel(p.Enabled), statusLabel(p))
		for _, m := range modelsByProvider[p.ID] {
			fmt.Fprintf(tw, "  └ %s\t%s\t\t\t\t%s\t\n", m.Name, m.Kind, enabledLabel(m.Enabled))
		}
	}
	tw.Flush()
}

func renderConnectionResult(w io.Writer, p *models.Provider, model string, result providers.ConnectionResult) {
	if result.Status == models.ProviderStatusConnected {
		fmt.Fprintf(w, "%s %s (%s) answered in %dms\n", color.GreenString("✓"), p.ID, model, result.LatencyMs)
		return
	}
	fmt.Fprintf(w, "%s %s (%s) failed after %dms: %s\n", color.RedString("✗"), p.ID, model, result.LatencyMs, result.Error)
}

func enabledLabel(enabled bool) string {
	if enabled {
		return color.GreenString("yes")
	}
	return color.HiBlackString("no")
}

func statusLabel(p *models.Provider) string {
	switch p.Status {
	case models.ProviderStatusConnected:
		label := color.GreenString(string(p.Status))
		if p.LatencyMs != nil {
			label += fmt.Sprintf(" (%dms)", *p.LatencyMs)
		}
		return label
	case models.ProviderStatusFailed:
		return color.RedString(string(p.Status))
	default:
		return color.YellowString(string(models.ProviderStatusUntested))
	}
}
