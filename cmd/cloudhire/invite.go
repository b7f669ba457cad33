package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/cloudhire/internal/store"
)

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite EMAIL",
		Short: "Issue a magic sign-in link for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE:  runInvite,
	}
	cmd.Flags().Bool("send", false, "Email the link to the candidate")
	addDBFlag(cmd)
	addLinkFlags(cmd)
	addMailFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func runInvite(cmd *cobra.Command, args []string) error {
	v := setup(cmd)
	email := strings.ToLower(strings.TrimSpace(args[0]))

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.EnsureCandidate(email); err != nil {
		return fmt.Errorf("create candidate user: %w", err)
	}
	issuer, err := buildIssuer(v, db)
	if err != nil {
		return fmt.Errorf("create magic link issuer: %w", err)
	}
	_, link, err := issuer.Issue(email)
	if err != nil {
		return err
	}

	if v.GetBool("send") {
		if err := buildMailer(v, db).SendInvite(cmd.Context(), email, link); err != nil {
			return fmt.Errorf("send invite: %w", err)
		}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), link)
	return err
}
