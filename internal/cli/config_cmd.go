package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// secretKeys are leaf keys whose values are masked by "config get".
var secretKeys = map[string]bool{
	"token":       true,
	"accesstoken": true,
	"verifytoken": true,
	"appsecret":   true,
	"password":    true,
	"url":         true, // AMQP URLs carry credentials
}

const masked = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
		Long:  "Keys are dotted paths into config.yaml, for example gateway.port or channels.whatsapp.phoneNumberId.",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			if !reveal {
				val = maskSecrets(path[len(path)-1], val)
			}
			return writeValue(os.Stdout, val)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print tokens and passwords in clear text")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			value := parseValue(args[1])
			config.SetValueAtPath(raw, path, value)

			if err := saveConfig(raw); err != nil {
				return err
			}

			shown := maskSecrets(path[len(path)-1], value)
			fmt.Printf("Set %s = %v\n", args[0], shown)
			warnInvalid(os.Stderr)
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			if !config.UnsetValueAtPath(raw, path) {
				return fmt.Errorf("key %q not found", args[0])
			}

			if err := saveConfig(raw); err != nil {
				return err
			}

			fmt.Printf("Unset %s\n", args[0])
			warnInvalid(os.Stderr)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(paths.Config)
		},
	}
}

func saveConfig(raw map[string]any) error {
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return config.SaveRaw(paths.Config, raw)
}

// warnInvalid reloads the saved file and reports validation issues. The
// write is kept either way so a multi-step edit can pass through an
// invalid state.
func warnInvalid(w io.Writer) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		fmt.Fprintf(w, "warning: config no longer loads: %v\n", err)
		return
	}
	for _, issue := range config.Validate(&cfg) {
		fmt.Fprintf(w, "warning: %s\n", issue)
	}
}

// maskSecrets hides secret leaves of v. key is the name v is stored under.
func maskSecrets(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = maskSecrets(k, inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = maskSecrets(key, inner)
		}
		return out
	case string:
		if secretKeys[strings.ToLower(key)] && val != "" && !strings.HasPrefix(val, "${") {
			return masked
		}
	}
	return v
}

// writeValue outputs a value in a human-readable format.
func writeValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		fmt.Fprintln(w, val)
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

// parseValue interprets a string as a bool, integer or float when it looks
// like one.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	// "+1555..." and "007" stay strings
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	if strings.Contains(s, ".") && !strings.HasPrefix(s, "+") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
