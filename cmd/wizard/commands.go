package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/usecase"
)

func newStartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new listing session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			language, _ := cmd.Flags().GetString("language")
			detach, _ := cmd.Flags().GetBool("detach")

			svc, closeStore, err := a.service(ctx, !detach)
			if err != nil {
				return err
			}
			defer closeStore()

			out, err := svc.StartSession(ctx, language)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session %s\n\n%s\n", out.SessionID, assistantStyle.Render(out.FirstMessage))
			if detach {
				return nil
			}
			return converse(ctx, svc, out.Conversation, cmd.InOrStdin(), w, promptFor(os.Stdin))
		},
	}
	cmd.Flags().String("language", "en", "conversation language (en, nl)")
	cmd.Flags().Bool("detach", false, "create the session without entering the conversation")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [session-id]",
		Short: "Continue a session interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.service(ctx, true)
			if err != nil {
				return err
			}
			defer closeStore()

			conv, err := svc.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if n := len(conv.Messages); n > 0 {
				fmt.Fprintln(w, assistantStyle.Render(conv.Messages[n-1].Text))
			}
			return converse(ctx, svc, conv, cmd.InOrStdin(), w, promptFor(os.Stdin))
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			svc, closeStore, err := a.service(ctx, false)
			if err != nil {
				return err
			}
			defer closeStore()

			sessions, err := svc.ListRecentSessions(ctx, limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().Int("limit", usecase.DefaultListLimit, "maximum number of sessions")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print a session with its message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asJSON, _ := cmd.Flags().GetBool("json")
			svc, closeStore, err := a.service(ctx, false)
			if err != nil {
				return err
			}
			defer closeStore()

			conv, err := svc.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(conv)
			}
			printConversation(cmd.OutOrStdout(), conv)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the full session as JSON")
	return cmd
}

func newEndCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "end [session-id]",
		Short: "Abandon a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := a.service(ctx, false)
			if err != nil {
				return err
			}
			defer closeStore()

			conv, err := svc.EndSession(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s is %s.\n", conv.SessionID, conv.Status)
			return nil
		},
	}
}

func printSessions(w io.Writer, sessions []domain.SessionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTEP\tSTATUS\tLANG\tTOKENS\tUPDATED\tTITLE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			s.SessionID, s.CurrentStep, s.Status, s.Language, s.Usage.Total,
			s.UpdatedAt.Local().Format(time.DateTime), s.Title)
	}
	return tw.Flush()
}

func printConversation(w io.Writer, conv domain.Conversation) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Session %s (%s, step %d, %s)", conv.SessionID, conv.Language, conv.CurrentStep, conv.Status)))
	if conv.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", conv.Title)
	}
	fmt.Fprintln(w)
	for _, m := range conv.Messages {
		fmt.Fprintf(w, "[%d] %s: %s\n", m.Step, m.Role, m.Text)
	}
	if conv.Data.FinalListing != "" {
		fmt.Fprintf(w, "\n--- listing ---\n%s\n", conv.Data.FinalListing)
	}
	if conv.Data.Quality != nil {
		printQuality(w, *conv.Data.Quality)
	}
	fmt.Fprintf(w, "\ntokens: %d in, %d out, %d total", conv.Usage.Input, conv.Usage.Output, conv.Usage.Total)
	if conv.Provider != "" {
		fmt.Fprintf(w, " (last provider %s)", conv.Provider)
	}
	fmt.Fprintln(w)
}
