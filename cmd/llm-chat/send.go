// ABOUTME: One-shot send command
// ABOUTME: Sends a single message and prints the reply

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/llm-chat/internal/dialog"
)

var (
	sendSessionFlag string
	showThoughts    bool
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		sess, err := rt.pickSession(sendSessionFlag)
		if err != nil {
			return err
		}
		if showThoughts {
			sess.SetReasoningHidden(false)
		}

		reply, err := sess.SendMessage(context.WithoutCancel(cmd.Context()), strings.TrimSpace(strings.Join(args, " ")))
		if err != nil {
			return err
		}

		v := dialog.NewView(dialog.Record{Role: dialog.RoleAssistant, Content: reply}, sess.ReasoningHidden())
		out := cmd.OutOrStdout()
		if v.ThoughtVisible {
			thoughtColor.Fprintln(out, v.HiddenText)
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, v.VisibleText)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendSessionFlag, "session", "s", "", "session name (default is the first configured session)")
	sendCmd.Flags().BoolVar(&showThoughts, "show-thoughts", false, "print reasoning enclosed in think tags")
}
