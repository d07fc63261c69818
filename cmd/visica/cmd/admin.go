package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/visica/records"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands run directly against the record store",
	Long: `Operator commands open the record store the server uses (same --store,
--data-dir and --postgres-dsn) and need no passphrase. A bbolt store can
only be opened while the server is stopped.`,
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every record without its data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, release, err := openService(cmd)
		if err != nil {
			return err
		}
		defer release()

		summaries, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(toSummaryJSON(summaries))
		}
		printSummaries(cmd.OutOrStdout(), summaries)
		return nil
	},
}

var adminBanCmd = &cobra.Command{
	Use:   "ban ID",
	Short: "Ban a record; it stays readable but cannot be changed or deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], false)
	},
}

var adminUnbanCmd = &cobra.Command{
	Use:   "unban ID",
	Short: "Reinstate a banned record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args[0], true)
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	addStoreFlags(adminCmd.PersistentFlags())
	adminCmd.AddCommand(adminListCmd, adminBanCmd, adminUnbanCmd)
	adminListCmd.Flags().Bool("json", false, "Output as JSON")
}

func openService(cmd *cobra.Command) (*records.Service, func(), error) {
	repo, _, err := openRepository(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return records.NewService(repo), func() { repo.Close() }, nil
}

func setStatus(cmd *cobra.Command, id string, active bool) error {
	svc, release, err := openService(cmd)
	if err != nil {
		return err
	}
	defer release()

	s, err := svc.SetStatus(cmd.Context(), id, active)
	if err != nil {
		return err
	}
	logger.Info("record status changed", "record_id", s.ID, "active", s.Status)
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", s.Name, s.ID, statusLabel(s.Status))
	return nil
}

func statusLabel(active bool) string {
	if active {
		return "active"
	}
	return "banned"
}

func printSummaries(w io.Writer, summaries []records.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUPDATED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, statusLabel(s.Status), s.Updated.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

type summaryJSON struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Status  bool      `json:"status"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

func toSummaryJSON(in []records.Summary) []summaryJSON {
	out := make([]summaryJSON, len(in))
	for i, s := range in {
		out[i] = summaryJSON(s)
	}
	return out
}
