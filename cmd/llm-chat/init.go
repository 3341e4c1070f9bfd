// ABOUTME: Init command that writes a starter config file
// ABOUTME: Prompts for each value with a default; EOF accepts every default

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/llm-chat/internal/config"
	"github.com/2389/llm-chat/internal/transport"
)

const defaultLocalEndpoint = "http://localhost:1234/v1/chat/completions"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new config file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), getConfigPath())
	},
}

func runInit(in io.Reader, out io.Writer, defaultPath string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "llm-chat configuration setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", defaultPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Local model (OpenAI-style chat completions) ---")
	localEndpoint := prompt(reader, out, "Endpoint URL", defaultLocalEndpoint)
	systemPrompt := prompt(reader, out, "System prompt (leave empty for none)", "")

	fmt.Fprintln(out, "\n--- Hosted model (Anthropic messages API) ---")
	addHosted := yes(prompt(reader, out, "Add a hosted session?", "no"))
	model := transport.DefaultModel
	if addHosted {
		model = prompt(reader, out, "Model", transport.DefaultModel)
	}

	fmt.Fprintln(out, "\n--- Server ---")
	httpAddr := prompt(reader, out, "HTTP address", config.DefaultHTTPAddr)
	enableMetrics := yes(prompt(reader, out, "Expose Prometheus metrics?", "yes"))

	fmt.Fprintln(out, "\n--- Logging ---")
	logLevel := prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, out, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# llm-chat configuration\n")
	cfg.WriteString("# Generated by llm-chat init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n\n", httpAddr)

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n\n", logFormat)

	cfg.WriteString("metrics:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", enableMetrics)
	fmt.Fprintf(&cfg, "  path: %q\n\n", config.DefaultMetricsPath)

	cfg.WriteString("reasoning:\n")
	cfg.WriteString("  hidden: true\n\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  - name: \"local\"\n")
	fmt.Fprintf(&cfg, "    transport: %q\n", transport.KindCompletions)
	fmt.Fprintf(&cfg, "    endpoint: %q\n", localEndpoint)
	if systemPrompt != "" {
		fmt.Fprintf(&cfg, "    system_prompt: %q\n", systemPrompt)
	}
	fmt.Fprintf(&cfg, "    timeout: %q\n", config.DefaultTimeout.String())
	if addHosted {
		cfg.WriteString("  - name: \"claude\"\n")
		fmt.Fprintf(&cfg, "    transport: %q\n", transport.KindContentArray)
		cfg.WriteString("    api_key: \"${ANTHROPIC_API_KEY}\"\n")
		fmt.Fprintf(&cfg, "    model: %q\n", model)
		fmt.Fprintf(&cfg, "    max_tokens: %d\n", transport.DefaultMaxTokens)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	if addHosted {
		fmt.Fprintln(out, "Set ANTHROPIC_API_KEY in your environment or a .env file.")
	}
	fmt.Fprintln(out, "\nTo start chatting:")
	fmt.Fprintln(out, "  llm-chat chat")
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}
