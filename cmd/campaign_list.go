package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/store"
)

var (
	campaignListTenant string
	campaignListStatus string
	campaignListLimit  int
)

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{
			TenantID: campaignListTenant,
			Status:   model.CampaignStatus(campaignListStatus),
			Limit:    campaignListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "campaign list")
		}

		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignsList(os.Stdout, campaigns)
		return nil
	},
}

func formatCampaignsList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSOURCE\tSTATUS\tPROGRESS\tLEADS")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t--------\t-----")
	for _, c := range campaigns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\n",
			truncateID(c.ID), c.Name, c.Source, model.NormalizeStatus(c.Status), c.Progress, c.Stats.LeadsExtracted)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	campaignListCmd.Flags().StringVar(&campaignListTenant, "tenant", "", "filter by tenant ID")
	campaignListCmd.Flags().StringVar(&campaignListStatus, "status", "", "filter by campaign status")
	campaignListCmd.Flags().IntVar(&campaignListLimit, "limit", 50, "max number of campaigns to display")
	campaignCmd.AddCommand(campaignListCmd)
}
