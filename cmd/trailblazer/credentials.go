package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/storage"
	"trailblazer_ai/internal/utils"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored provider credentials",
}

type credentialFlags struct {
	provider     string
	apiKey       string
	secretKey    string
	region       string
	defaultModel string
	judge        bool
	disabled     bool
	tenant       string
}

var credFlags credentialFlags

func credentialTenant() string {
	if credFlags.tenant != "" {
		return credFlags.tenant
	}
	return cfg.Provider.Tenant
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a provider credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := models.ParseProviderIdentity(credFlags.provider)
		if err != nil {
			return err
		}
		if credFlags.apiKey == "" && provider != models.ProviderBedrock {
			return eris.New("--api-key is required")
		}

		ring, err := storage.NewKeyRing(cfg.Provider.MasterKey, cfg.Provider.CredentialKeys.ByProvider())
		if err != nil {
			return err
		}
		cred := &models.ProviderCredential{
			TenantID:     credentialTenant(),
			Provider:     provider,
			DefaultModel: credFlags.defaultModel,
			IsEnabled:    !credFlags.disabled,
			IsJudgeModel: credFlags.judge,
		}
		if credFlags.region != "" {
			cred.Region = utils.StringPtr(credFlags.region)
		}
		if err := ring.SealCredential(cred, credFlags.apiKey, credFlags.secretKey); err != nil {
			return eris.Wrap(err, "seal credential")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.NewCredentialRepository().Upsert(cmd.Context(), cred); err != nil {
			return eris.Wrap(err, "store credential")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s credential for tenant %s\n", provider, cred.TenantID)
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled provider credentials without secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		creds, err := db.NewCredentialRepository().ListEnabled(cmd.Context(), credentialTenant())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tDEFAULT MODEL\tREGION\tJUDGE\tSECRET KEY")
		for _, c := range creds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n",
				c.Provider, c.DefaultModel, utils.StringPtrValue(c.Region), c.IsJudgeModel, c.HasSecretKey())
		}
		return tw.Flush()
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a provider credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := models.ParseProviderIdentity(credFlags.provider)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.NewCredentialRepository().Delete(cmd.Context(), credentialTenant(), provider); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s credential\n", provider)
		return nil
	},
}

func init() {
	credentialsCmd.PersistentFlags().StringVar(&credFlags.tenant, "tenant", "", "tenant id (default TENANT_ID)")

	f := credentialsSetCmd.Flags()
	f.StringVar(&credFlags.provider, "provider", "", "provider: anthropic, openai, google, xai or bedrock")
	f.StringVar(&credFlags.apiKey, "api-key", "", "provider API key (bedrock: access key id)")
	f.StringVar(&credFlags.secretKey, "secret-key", "", "bedrock secret access key")
	f.StringVar(&credFlags.region, "region", "", "bedrock region")
	f.StringVar(&credFlags.defaultModel, "default-model", "", "model used when a request names none")
	f.BoolVar(&credFlags.judge, "judge", false, "allow this provider as the judge")
	f.BoolVar(&credFlags.disabled, "disabled", false, "store the credential disabled")
	_ = credentialsSetCmd.MarkFlagRequired("provider")

	credentialsDeleteCmd.Flags().StringVar(&credFlags.provider, "provider", "", "provider to remove")
	_ = credentialsDeleteCmd.MarkFlagRequired("provider")

	credentialsCmd.AddCommand(credentialsSetCmd, credentialsListCmd, credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}
