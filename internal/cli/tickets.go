package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guardianbot/guardian/pkg/protocol"
)

func newTicketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List, inspect and create support tickets",
	}
	cmd.AddCommand(newTicketsListCmd(), newTicketsStatusCmd(), newTicketsCreateCmd())
	return cmd
}

func newTicketsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every ticket in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := apiClient.Tickets(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing tickets: %w", err)
			}
			out := cmd.OutOrStdout()
			return printOutput(out, tickets, func() {
				if len(tickets) == 0 {
					fmt.Fprintln(out, "No tickets.")
					return
				}
				rows := make([][]string, 0, len(tickets))
				for _, t := range tickets {
					rows = append(rows, []string{
						t.TicketID, string(t.Status), t.Priority, t.Department,
						t.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(t.Issue, 48),
					})
				}
				printTable(out, []string{"ID", "STATUS", "PRIORITY", "DEPARTMENT", "CREATED", "ISSUE"}, rows)
			})
		},
	}
}

func newTicketsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <ticket-id>",
		Short: "Show the status of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.TicketStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printOutput(out, map[string]string{"ticket_id": args[0], "status": string(status)}, func() {
				fmt.Fprintf(out, "%s  %s\n", args[0], status)
			})
		},
	}
}

func newTicketsCreateCmd() *cobra.Command {
	var t protocol.NewTicket

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket without going through the assistant",
		Example: `  guardianctl tickets create --issue "Printer not working" --name "John Doe" \
    --email john@example.com --priority High --department IT \
    --noticed-at "2024-06-01 09:00" --attachments error.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := apiClient.CreateTicket(cmd.Context(), t)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printOutput(out, map[string]string{"ticket_id": id}, func() {
				color.New(color.FgGreen).Fprintf(out, "Ticket %s created.\n", id)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&t.Issue, "issue", "", "Description of the problem")
	f.StringVar(&t.ReporterName, "name", "", "Reporter name")
	f.StringVar(&t.Email, "email", "", "Reporter email")
	f.StringVar(&t.Priority, "priority", "", "Priority (e.g. Low, Medium, High)")
	f.StringVar(&t.Attachments, "attachments", "", "Attachment file name")
	f.StringVar(&t.Department, "department", "", "Department")
	f.StringVar(&t.NoticedAt, "noticed-at", "", "When the problem was first noticed")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
