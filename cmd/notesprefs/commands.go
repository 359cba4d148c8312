package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/notesprefs/internal/api"
	"github.com/kalambet/notesprefs/internal/catalog"
	"github.com/kalambet/notesprefs/internal/config"
	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/storage"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

// capsFromFlags returns the runtime from --platform-version, or the
// configured one when the flag is unset.
func capsFromFlags(cmd *cobra.Command) (preference.Capabilities, error) {
	if cmd.Flags().Changed("platform-version") {
		v, _ := cmd.Flags().GetInt("platform-version")
		if v < 0 {
			return preference.Capabilities{}, fmt.Errorf("--platform-version must not be negative")
		}
		return preference.Capabilities{PlatformVersion: v}, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return preference.Capabilities{}, err
	}
	return cfg.Capabilities(), nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- domains ---

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Inspect preference domains",
}

var domainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all preference domains with their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		caps, err := capsFromFlags(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, doc := range preference.Export(catalog.Registry(), caps) {
			supported := 0
			for _, o := range doc.Options {
				if o.Supported {
					supported++
				}
			}
			fmt.Fprintf(out, "%-34s default=%-16s options=%d/%d\n",
				colorize(colorCyan, doc.Key), doc.Default, supported, len(doc.Options))
		}
		return nil
	},
}

var domainsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the options of one domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caps, err := capsFromFlags(cmd)
		if err != nil {
			return err
		}
		d, err := catalog.Registry().Domain(args[0])
		if err != nil {
			return err
		}
		doc := preference.DescribeDomain(d, caps)

		out := cmd.OutOrStdout()
		if doc.Name != "" {
			fmt.Fprintf(out, "%s (%s)\n", colorize(colorBold, doc.Key), doc.Name)
		} else {
			fmt.Fprintln(out, colorize(colorBold, doc.Key))
		}
		for _, o := range doc.Options {
			line := "  " + o.ID
			if o.Default {
				line += " " + colorize(colorGreen, "[default]")
			}
			if o.Value != nil {
				line += fmt.Sprintf(" value=%d", *o.Value)
			}
			if o.Requires != nil {
				line += fmt.Sprintf(" requires platform>=%d", o.Requires.MinPlatformVersion)
			}
			if !o.Supported {
				line += " " + colorize(colorYellow, "(unsupported)")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	domainsListCmd.Flags().Int("platform-version", 0, "evaluate support for this platform version (default: configured runtime)")
	domainsShowCmd.Flags().Int("platform-version", 0, "evaluate support for this platform version (default: configured runtime)")
	domainsCmd.AddCommand(domainsListCmd)
	domainsCmd.AddCommand(domainsShowCmd)
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Work with the preference schema",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every domain, option and default as YAML or JSON",
	Long: `Export the preference schema.

Examples:
  notesprefs schema export
  notesprefs schema export --format json --platform-version 30
  notesprefs schema export --output schema.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		caps, err := capsFromFlags(cmd)
		if err != nil {
			return err
		}
		docs := preference.Export(catalog.Registry(), caps)

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		switch strings.ToLower(format) {
		case "yaml", "yml":
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(docs); err != nil {
				return fmt.Errorf("encoding yaml: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
		case "json":
			if err := writeIndentedJSON(w, docs); err != nil {
				return fmt.Errorf("encoding json: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		}

		if output != "" {
			printSuccess("Wrote %d domains to %s", len(docs), output)
		}
		return nil
	},
}

func init() {
	schemaExportCmd.Flags().String("format", "yaml", "output format: yaml or json")
	schemaExportCmd.Flags().String("output", "", "write to this file instead of stdout")
	schemaExportCmd.Flags().Int("platform-version", 0, "evaluate support for this platform version (default: configured runtime)")
	schemaCmd.AddCommand(schemaExportCmd)
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and change stored preferences via the running server",
}

func prefsPath(key string) string {
	return "/preferences/" + url.PathEscape(key)
}

func printSelection(w io.Writer, sel api.SelectionDoc) {
	line := fmt.Sprintf("%s = %s", colorize(colorBold, sel.Key), sel.Option)
	switch {
	case sel.Normalized:
		line += " " + colorize(colorYellow, fmt.Sprintf("(stored %q is unknown, using default)", sel.Raw))
	case !sel.Stored:
		line += " " + colorize(colorDim, "(default)")
	}
	fmt.Fprintln(w, line)
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective value of every preference",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}
		var sels []api.SelectionDoc
		if err := decodeJSON(resp, &sels); err != nil {
			return err
		}

		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), sels)
		}
		for _, s := range sels {
			printSelection(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the effective value of one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), prefsPath(args[0]))
		if err != nil {
			return err
		}
		var sel api.SelectionDoc
		if err := decodeJSON(resp, &sel); err != nil {
			return err
		}
		printSelection(cmd.OutOrStdout(), sel)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <option>",
	Short: "Select an option for a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, option := args[0], args[1]

		req := api.SetRequest{Option: option}
		if cmd.Flags().Changed("platform-version") {
			v, _ := cmd.Flags().GetInt("platform-version")
			req.PlatformVersion = &v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), prefsPath(key), req)
		if err != nil {
			return err
		}
		var sel api.SelectionDoc
		if err := decodeJSON(resp, &sel); err != nil {
			return err
		}
		printSuccess("Set %s = %s", sel.Key, sel.Option)
		return nil
	},
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Clear a preference so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), prefsPath(args[0]))
		if err != nil {
			return err
		}
		var sel api.SelectionDoc
		if err := decodeJSON(resp, &sel); err != nil {
			return err
		}
		printSuccess("Reset %s to %s", sel.Key, sel.Option)
		return nil
	},
}

var prefsHistoryCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "List recorded changes of a preference, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("%s/history?limit=%d", prefsPath(args[0]), limit))
		if err != nil {
			return err
		}
		var changes []storage.Change
		if err := decodeJSON(resp, &changes); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(changes) == 0 {
			fmt.Fprintln(out, "No changes recorded.")
			return nil
		}
		for _, c := range changes {
			fmt.Fprintf(out, "%s  %s -> %s\n",
				colorize(colorCyan, c.ChangedAt.Local().Format("2006-01-02 15:04:05")),
				orUnset(c.OldValue), orUnset(c.NewValue))
		}
		return nil
	},
}

func orUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func init() {
	prefsShowCmd.Flags().Bool("json", false, "print as JSON")
	prefsSetCmd.Flags().Int("platform-version", 0, "platform version of the device making the change (default: server runtime)")
	prefsHistoryCmd.Flags().Int("limit", 20, "maximum number of changes to list")

	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsResetCmd)
	prefsCmd.AddCommand(prefsHistoryCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n",
				colorize(colorBold, k.Key), k.Value, colorize(colorDim, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
