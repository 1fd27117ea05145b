package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/config"
	"github.com/steveyegge/tandem/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration settings",
	Long: `Manage settings in .tandem/config.yaml. Keys may also be overridden
per invocation through TANDEM_* environment variables or flags; 'set'
and 'unset' edit the file itself.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !config.IsValidKey(key) {
			FatalErrorWithHint(fmt.Sprintf("unknown configuration key %q", key),
				"Run 'tandem config list' to see recognized keys")
		}
		value := config.GetString(key)
		if jsonOutput {
			outputJSON(map[string]string{key: value})
			return
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]
		if !config.IsValidKey(key) {
			FatalErrorWithHint(fmt.Sprintf("unknown configuration key %q", key),
				"Run 'tandem config list' to see recognized keys")
		}
		if err := config.SetYamlConfig(key, value); err != nil {
			FatalError("%v", err)
		}
		// Reflect the change in the running process too.
		config.Set(key, value)
		if issues := config.Validate(); len(issues) > 0 {
			for _, issue := range issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.RenderWarnIcon(), issue)
			}
		}
		if !jsonOutput {
			fmt.Printf("%s %s = %s\n", ui.RenderPassIcon(), key, value)
		}
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value from config.yaml",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir, err := config.FindProjectDir()
		if err != nil {
			FatalError("%v", err)
		}
		if err := config.UnsetYamlConfig(dir, args[0]); err != nil {
			FatalError("%v", err)
		}
		if !jsonOutput {
			fmt.Printf("%s unset %s\n", ui.RenderPassIcon(), args[0])
		}
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recognized keys and their current values",
	Run: func(cmd *cobra.Command, _ []string) {
		keys := make([]string, 0, len(config.ValidKeys))
		for k := range config.ValidKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if jsonOutput {
			outputJSON(config.AllSettings())
			return
		}
		width := 0
		for _, k := range keys {
			if len(k) > width {
				width = len(k)
			}
		}
		for _, k := range keys {
			value := config.GetString(k)
			if value == "" {
				value = ui.RenderMuted("(unset)")
			}
			fmt.Printf("  %-*s  %s  %s\n", width, k, value,
				ui.RenderMuted(config.ValidKeys[k]))
		}
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration for problems",
	Run: func(cmd *cobra.Command, _ []string) {
		issues := config.Validate()
		if jsonOutput {
			if issues == nil {
				issues = []string{}
			}
			outputJSON(map[string]interface{}{"valid": len(issues) == 0, "issues": issues})
			return
		}
		if len(issues) == 0 {
			fmt.Printf("%s Configuration is valid\n", ui.RenderPassIcon())
			return
		}
		for _, issue := range issues {
			fmt.Printf("%s %s\n", ui.RenderFailIcon(), issue)
		}
		FatalError("%d configuration issue(s)", len(issues))
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd, configListCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
