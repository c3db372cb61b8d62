package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"fundportal/internal/apiclient"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session token for later commands",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user of the stored session",
	RunE:  runWhoami,
}

var demandsCmd = &cobra.Command{
	Use:   "demands",
	Short: "Query and decide fund demands",
}

var demandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the fund demands visible to the signed-in user",
	RunE:  runDemandsList,
}

var demandsActCmd = &cobra.Command{
	Use:   "act [demand-id] [approve|reject|send-back|resubmit]",
	Short: "Approve, reject, send back or resubmit a demand",
	Args:  cobra.ExactArgs(2),
	RunE:  runDemandsAct,
}

var (
	loginUser     string
	loginPassword string
	listFilter    apiclient.DemandFilter
	actRemark     string
	actAmount     string
)

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "Login name (required)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (or set PORTAL_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("username")

	demandsListCmd.Flags().StringVar(&listFilter.FY, "fy", "", "Financial year, e.g. 2024-25 (default: all)")
	demandsListCmd.Flags().StringVar(&listFilter.District, "district", "", "District id or All")
	demandsListCmd.Flags().StringVar(&listFilter.Scheme, "scheme", "", "Scheme id or All")
	demandsListCmd.Flags().StringVar(&listFilter.Status, "status", "", "Pending, Approved, Rejected, Returned or All")
	demandsListCmd.Flags().StringVarP(&listFilter.Search, "query", "q", "", "Search reference, work or vendor")

	demandsActCmd.Flags().StringVar(&actRemark, "remark", "", "Remark; required to reject or send back")
	demandsActCmd.Flags().StringVar(&actAmount, "amount", "", "New amount when resubmitting")

	demandsCmd.AddCommand(demandsListCmd)
	demandsCmd.AddCommand(demandsActCmd)
}

func newClient() *apiclient.Client {
	c := apiclient.New(serverURL)
	if b, err := os.ReadFile(tokenFile); err == nil {
		c.SetToken(strings.TrimSpace(string(b)))
	}
	return c
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	return os.WriteFile(tokenFile, []byte(token+"\n"), 0600)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	password := loginPassword
	if password == "" {
		password = os.Getenv("PORTAL_PASSWORD")
	}

	c := apiclient.New(serverURL)
	var saveErr error
	c.OnLogin = func(s apiclient.Session) { saveErr = saveToken(s.Token) }

	sess, err := c.Login(ctx, loginUser, password)
	if err != nil {
		return err
	}
	if saveErr != nil {
		return saveErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s), session valid until %s\n",
		sess.User.Username, sess.User.RoleLabel, sess.ExpiresAt)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	err := newClient().Logout(ctx)
	if rmErr := os.Remove(tokenFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	if err != nil && apiclient.StatusOf(err) != http.StatusUnauthorized {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	u, err := newClient().Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) %s\n", u.Username, u.RoleLabel, u.DisplayName)
	return nil
}

func runDemandsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	list, err := newClient().ListDemands(ctx, listFilter)
	if err != nil {
		return err
	}
	return printDemands(cmd.OutOrStdout(), list)
}

func printDemands(out io.Writer, list apiclient.DemandList) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREFERENCE\tDATE\tWORK\tVENDOR\tSTATUS\tGROSS\tNET")
	for _, d := range list.Demands {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Reference, d.Date, d.WorkTitle, d.VendorName, d.Status, d.Gross, d.NetPayable)
	}
	fmt.Fprintf(tw, "\t\t\t%d demands\t\t\t%s\t%s\n", list.Totals.Count, list.Totals.Gross, list.Totals.Net)
	return tw.Flush()
}

func runDemandsAct(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid demand id %q", args[0])
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	d, err := newClient().Act(ctx, id, apiclient.Action{Action: args[1], Remark: actRemark, Amount: actAmount})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", d.Reference, d.Status)
	return nil
}
