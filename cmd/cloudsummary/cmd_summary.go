package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/cloudsummary/pkg/client"
)

var (
	summaryQuery client.SummaryQuery
	summaryAll   bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Fetch cloud usage summaries from a running server",
	Example: `  cloudsummary summary --token $TOKEN --group TestGroup --from 20160101 --to 20161231
  cloudsummary summary --token $TOKEN --service TestSite --from 20160101 --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if summaryAll {
			rows, err := c.SummaryAll(cmd.Context(), summaryQuery)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(rows)
			}
			printRows(rows)
			fmt.Printf("%d rows\n", len(rows))
			return nil
		}

		page, err := c.Summary(cmd.Context(), summaryQuery)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(page)
		}
		printRows(page.Results)
		fmt.Printf("%d of %d rows\n", len(page.Results), page.Count)
		if page.Next != nil {
			fmt.Printf("next: %s\n", *page.Next)
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryQuery.Group, "group", "", "Filter by VO group")
	summaryCmd.Flags().StringVar(&summaryQuery.Service, "service", "", "Filter by site name")
	summaryCmd.Flags().StringVar(&summaryQuery.From, "from", "", "Lower time bound, exclusive (e.g. 20160101)")
	summaryCmd.Flags().StringVar(&summaryQuery.To, "to", "", "Upper time bound, exclusive; ignored without --group or --service")
	summaryCmd.Flags().IntVar(&summaryQuery.Page, "page", 0, "Page number")
	summaryCmd.Flags().BoolVar(&summaryAll, "all", false, "Follow next links and print every page")
	addClientFlags(summaryCmd)
	rootCmd.AddCommand(summaryCmd)
}
