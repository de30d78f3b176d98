package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		message string
		session string
		keep    bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant",
		Long: `Send a single message with --message, or start an interactive session.
In interactive mode, /reset starts a new conversation and quit or exit leaves.`,
		Example: `  guardianctl chat
  guardianctl chat -m "My printer is broken"
  guardianctl chat -s 3f1c... -m "What is the status of my ticket?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message != "" {
				reply, err := apiClient.Chat(cmd.Context(), session, message)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply.Response)
				if session == "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", reply.SessionID)
				}
				return nil
			}
			return chatREPL(cmd, cmd.InOrStdin(), session, keep)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Continue an existing session")
	cmd.Flags().BoolVar(&keep, "keep-session", false, "Do not end the session on exit")
	return cmd
}

func chatREPL(cmd *cobra.Command, in io.Reader, session string, keep bool) error {
	out := cmd.OutOrStdout()
	prompt := color.New(color.FgCyan, color.Bold)
	errColor := color.New(color.FgRed)

	fmt.Fprintln(out, "GuardianBot (type 'quit' to exit, '/reset' for a new conversation)")
	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return endSession(cmd, session, keep)
		case "/reset":
			if err := endSession(cmd, session, false); err != nil {
				errColor.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			}
			session = ""
			fmt.Fprintln(out, "Started a new conversation.")
			continue
		}

		reply, err := apiClient.Chat(cmd.Context(), session, line)
		if err != nil {
			errColor.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		session = reply.SessionID
		fmt.Fprintln(out, reply.Response)
		fmt.Fprintln(out)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return endSession(cmd, session, keep)
}

func endSession(cmd *cobra.Command, session string, keep bool) error {
	if keep || session == "" {
		return nil
	}
	return apiClient.EndSession(cmd.Context(), session)
}
