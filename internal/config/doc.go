// Package config handles configuration loading for llm-chat.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by file extension) with
// environment variable expansion. The package provides validation and
// sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from LLM_CHAT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/llm-chat/config.yaml
//  4. ~/.config/llm-chat/config.yaml
//
// A .env file in the working directory is loaded first, so secrets can live
// outside the config file.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sessions:
//	  - name: claude
//	    transport: content-array
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  - name: local
//	    timeout: "100s"
//
// An omitted timeout defaults to 100s; "0s" disables it.
//
// # Validation
//
// Load rejects a config with no sessions, duplicate or empty session names,
// an unknown transport, a completions session without an absolute http(s)
// endpoint, or a content-array session without an api_key.
package config
