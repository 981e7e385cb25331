package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-engine/internal/model"
)

var campaignCreateFile string

// campaignDef mirrors the subset of model.Campaign an operator can specify
// up front; the rest (ID, status, stats, progress, timestamps) is server-
// assigned at creation.
type campaignDef struct {
	TenantID    string               `yaml:"tenant_id"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Source      model.CampaignSource `yaml:"source"`
	SeedURLs    []string             `yaml:"seed_urls"`
	Query       model.CampaignQuery  `yaml:"query"`
	MaxItems    int                  `yaml:"max_items"`
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign from a YAML definition file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(campaignCreateFile)
		if err != nil {
			return eris.Wrap(err, "campaign create: read definition file")
		}

		var def campaignDef
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return eris.Wrap(err, "campaign create: parse definition file")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.CreateCampaign(ctx, model.Campaign{
			TenantID:    def.TenantID,
			Name:        def.Name,
			Description: def.Description,
			Source:      def.Source,
			SeedURLs:    def.SeedURLs,
			Query:       def.Query,
			MaxItems:    def.MaxItems,
			Status:      model.StatusQueued,
		})
		if err != nil {
			return eris.Wrap(err, "campaign create: persist")
		}

		cmd.Printf("created campaign %s (tenant %s)\n", created.ID, created.TenantID)
		return nil
	},
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignCreateFile, "file", "", "path to a campaign definition YAML file (required)")
	_ = campaignCreateCmd.MarkFlagRequired("file")
	campaignCmd.AddCommand(campaignCreateCmd)
}
