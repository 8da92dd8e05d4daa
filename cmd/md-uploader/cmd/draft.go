package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// draftCmd groups the commands that deal with the account's open draft
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect or discard the open upload draft",
	Long: `MangaDex allows one open upload draft per account. A draft left behind
by an interrupted run blocks new uploads until it is committed or deleted.`,
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the open upload draft, if any",
	RunE:  runDraftShow,
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete the open upload draft",
	RunE:  runDraftDiscard,
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftDiscardCmd)

	draftDiscardCmd.Flags().BoolP("yes", "y", false, "Delete without asking for confirmation")
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.session.EnsureLoggedIn(ctx, false); err != nil {
		return err
	}
	draft, err := svc.uploader.CurrentDraft(ctx)
	if err != nil {
		return fmt.Errorf("error fetching upload draft: %w", err)
	}
	out := cmd.OutOrStdout()
	if draft == nil {
		fmt.Fprintln(out, "No open upload draft.")
		return nil
	}
	fmt.Fprintf(out, "Draft id:   %s\n", draft.ID)
	fmt.Fprintf(out, "Created:    %s\n", draft.Attributes.CreatedAt)
	fmt.Fprintf(out, "Updated:    %s\n", draft.Attributes.UpdatedAt)
	fmt.Fprintf(out, "Committed:  %t\n", draft.Attributes.IsCommitted)
	return nil
}

func runDraftDiscard(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.session.EnsureLoggedIn(ctx, false); err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		draft, err := svc.uploader.CurrentDraft(ctx)
		if err != nil {
			return fmt.Errorf("error fetching upload draft: %w", err)
		}
		if draft == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No open upload draft.")
			return nil
		}
		if !confirm(os.Stdin, cmd.OutOrStdout(), fmt.Sprintf("Delete upload draft %s?", draft.ID)) {
			log.Info("Draft discard cancelled by user.")
			return nil
		}
	}

	id, err := svc.uploader.DiscardOpenDraft(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No open upload draft.")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted upload draft %s.\n", id)
	}
	return nil
}
