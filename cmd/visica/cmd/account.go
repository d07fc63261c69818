package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/session"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Create, sign in to and edit an account",
	Long: `Commands that talk to a Visica server as an account holder.

The passphrase of the signed-in account is kept in session.db under the data
directory, so later commands act on the same account until "signout".`,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an account and sign in to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		acct, passphrase, err := m.CreateAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created account %s (%s)\n\n", acct.Name, acct.ID)
		fmt.Fprintf(out, "Passphrase: %s\n\n", passphrase)
		fmt.Fprintln(out, "This passphrase is the only way back into the account. Store it now;")
		fmt.Fprintln(out, "it cannot be recovered.")
		return nil
	},
}

var accountSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with a passphrase read from the terminal or stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Passphrase: ")
		if err != nil {
			return err
		}
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		acct, err := m.SignIn(cmd.Context(), passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", acct.Name, acct.ID)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		acct, err := restore(cmd, m)
		if err != nil {
			return err
		}
		reveal, _ := cmd.Flags().GetBool("reveal")
		passphrase, err := m.Passphrase()
		if err != nil {
			return err
		}
		if !reveal {
			passphrase = account.MaskPassphrase(passphrase)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printAccountJSON(cmd.OutOrStdout(), acct, passphrase, reveal)
		}
		printAccount(cmd.OutOrStdout(), acct, passphrase, reveal)
		return nil
	},
}

var accountSetCmd = &cobra.Command{
	Use:   "set [KEY=VALUE ...]",
	Short: "Change the name or data values of the signed-in account",
	Long: `Sets data values from KEY=VALUE arguments and optionally renames the
account. --unset clears a key to the empty string. Nothing is sent when the
result equals the current account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		assignments, err := parseAssignments(args)
		if err != nil {
			return err
		}
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		current, err := restore(cmd, m)
		if err != nil {
			return err
		}
		edited := current.Clone()
		if cmd.Flags().Changed("name") {
			edited.Name, _ = cmd.Flags().GetString("name")
		}
		for k, v := range assignments {
			edited.Data[k] = v
		}
		unset, _ := cmd.Flags().GetStringSlice("unset")
		for _, k := range unset {
			edited.Data[k] = ""
		}

		if !account.Changed(current, edited) {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
			return nil
		}
		updated, err := m.Save(cmd.Context(), edited)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", updated.Name, updated.ID)
		return nil
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		acct, err := restore(cmd, m)
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
				fmt.Sprintf("Type %q to delete this account permanently: ", acct.Name), acct.Name)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("aborted")
			}
		}
		if err := m.DeleteAccount(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", acct.Name, acct.ID)
		return nil
	},
}

var accountSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Forget the stored passphrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		if err := m.SignOut(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	addClientFlags(accountCmd.PersistentFlags())
	accountCmd.AddCommand(accountCreateCmd, accountSignInCmd, accountShowCmd, accountSetCmd, accountDeleteCmd, accountSignOutCmd)

	accountShowCmd.Flags().Bool("reveal", false, "Print the passphrase and data values in full")
	accountShowCmd.Flags().Bool("json", false, "Output as JSON")
	accountSetCmd.Flags().String("name", "", "New display name")
	accountSetCmd.Flags().StringSlice("unset", nil, "Keys to clear")
	accountDeleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
}

// restore signs in silently from the stored passphrase.
func restore(cmd *cobra.Command, m *session.Manager) (account.Account, error) {
	acct, ok := m.Restore(cmd.Context())
	if !ok {
		return account.Account{}, errors.New(`not signed in; run "visica account signin" or "visica account create"`)
	}
	return acct, nil
}

func maskValue(v string) string {
	if v == "" {
		return "(unset)"
	}
	return strings.Repeat("*", min(len(v), 8))
}

func printAccount(w io.Writer, acct account.Account, passphrase string, reveal bool) {
	status := "active"
	if acct.Banned() {
		status = "banned (read-only)"
	}
	fmt.Fprintf(w, "Name:       %s\n", acct.Name)
	fmt.Fprintf(w, "ID:         %s\n", acct.ID)
	fmt.Fprintf(w, "Status:     %s\n", status)
	fmt.Fprintf(w, "Passphrase: %s\n", passphrase)
	if len(acct.Data) == 0 {
		return
	}
	fmt.Fprintln(w, "\nData:")
	for _, k := range slices.Sorted(maps.Keys(acct.Data)) {
		v := acct.Data[k]
		if !reveal {
			v = maskValue(v)
		}
		fmt.Fprintf(w, "  %s = %s\n", k, v)
	}
}

type accountJSON struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Status     bool              `json:"status"`
	Passphrase string            `json:"passphrase"`
	Data       map[string]string `json:"data"`
}

func printAccountJSON(w io.Writer, acct account.Account, passphrase string, reveal bool) error {
	data := make(map[string]string, len(acct.Data))
	for k, v := range acct.Data {
		if !reveal {
			v = maskValue(v)
		}
		data[k] = v
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(accountJSON{ID: acct.ID, Name: acct.Name, Status: acct.Status, Passphrase: passphrase, Data: data})
}
