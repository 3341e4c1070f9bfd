// ABOUTME: Interactive chat loop with slash commands
// ABOUTME: Renders replies with their reasoning shown or hidden by the shared flag

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/llm-chat/internal/dialog"
	"github.com/2389/llm-chat/internal/session"
)

const welcomeLine = "Hello! How can I help you today?"

var chatSessionFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		sess, err := rt.pickSession(chatSessionFlag)
		if err != nil {
			return err
		}

		r := &repl{
			in:       bufio.NewScanner(cmd.InOrStdin()),
			out:      cmd.OutOrStdout(),
			sessions: rt.manager,
			current:  sess,
		}
		return r.run(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionFlag, "session", "s", "", "session name (default is the first configured session)")
}

// sessionSource is the part of session.Manager the loop switches between.
type sessionSource interface {
	Get(name string) (*session.Session, error)
	Names() []string
}

type repl struct {
	in       *bufio.Scanner
	out      io.Writer
	sessions sessionSource
	current  *session.Session
}

var (
	youColor     = color.New(color.FgGreen, color.Bold)
	botColor     = color.New(color.FgCyan, color.Bold)
	thoughtColor = color.New(color.FgHiBlack, color.Italic)
	noticeColor  = color.New(color.FgYellow)
)

func (r *repl) run(ctx context.Context) error {
	color.New(color.FgHiBlack).Fprintf(r.out, "%s\n", r.current.Status())
	botColor.Fprint(r.out, r.current.Name()+"> ")
	fmt.Fprintln(r.out, welcomeLine)

	for {
		youColor.Fprint(r.out, "you> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}

		if name, arg, ok := parseCommand(line); ok {
			quit, err := r.command(name, arg)
			if err != nil {
				noticeColor.Fprintf(r.out, "%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		// Ctrl-C ends the loop after the reply, never mid-exchange.
		reply, err := r.current.SendMessage(context.WithoutCancel(ctx), line)
		if err != nil {
			noticeColor.Fprintf(r.out, "%v\n", err)
			continue
		}
		r.renderReply(reply)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// parseCommand splits "/name rest of line" into its parts.
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), name != ""
}

func (r *repl) command(name, arg string) (quit bool, err error) {
	switch name {
	case "quit", "exit":
		return true, nil

	case "clear":
		r.current.Clear()
		noticeColor.Fprintln(r.out, "History cleared.")

	case "think":
		r.toggleReasoning()

	case "system":
		if arg == "" {
			fmt.Fprintf(r.out, "System prompt: %q\n", r.current.SystemPrompt())
			return false, nil
		}
		r.current.SetSystemPrompt(arg)
		noticeColor.Fprintln(r.out, "System prompt updated.")

	case "export":
		out, err := r.current.ExportJSON()
		if err != nil {
			return false, fmt.Errorf("export: %w", err)
		}
		if arg == "" {
			fmt.Fprintln(r.out, out)
			return false, nil
		}
		if err := os.WriteFile(arg, []byte(out+"\n"), 0644); err != nil {
			return false, fmt.Errorf("export: %w", err)
		}
		noticeColor.Fprintf(r.out, "Exported %d records to %s\n", len(r.current.Snapshot()), arg)

	case "session":
		if arg == "" {
			for _, n := range r.sessions.Names() {
				marker := "  "
				if n == r.current.Name() {
					marker = "* "
				}
				fmt.Fprintln(r.out, marker+n)
			}
			return false, nil
		}
		next, err := r.sessions.Get(arg)
		if err != nil {
			return false, err
		}
		r.current = next
		noticeColor.Fprintln(r.out, next.Status())

	case "help":
		fmt.Fprintln(r.out, "/clear  /think  /system [text]  /export [file]  /session [name]  /quit")

	default:
		return false, errors.New("unknown command /" + name + " (try /help)")
	}
	return false, nil
}

// toggleReasoning flips the shared flag and reports how many stored replies
// in the current session were reclassified.
func (r *repl) toggleReasoning() {
	updated := 0
	cancel := r.current.OnVisibilityChanged(func(v dialog.View) {
		if v.HasThought {
			updated++
		}
	})
	hidden := !r.current.ReasoningHidden()
	r.current.SetReasoningHidden(hidden)
	cancel()

	state := "shown"
	if hidden {
		state = "hidden"
	}
	noticeColor.Fprintf(r.out, "Reasoning %s (%d replies affected).\n", state, updated)
}

func (r *repl) renderReply(reply string) {
	v := dialog.NewView(dialog.Record{Role: dialog.RoleAssistant, Content: reply}, r.current.ReasoningHidden())
	if v.ThoughtVisible {
		thoughtColor.Fprintf(r.out, "  (thinking) %s\n", v.HiddenText)
	}
	botColor.Fprint(r.out, r.current.Name()+"> ")
	fmt.Fprintln(r.out, v.VisibleText)
}
