package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angela-cli/angela/pkg/safety"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit execution preferences",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		data, err := json.MarshalIndent(c.Config.Preferences(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference and save it",
	Long: `Set a preference and save it.

Keys:
  auto_execute.<level>   true/false per risk level (safe, low, medium, high, critical)
  confirm_all_actions    true/false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		prefs := c.Config.Preferences()
		key, raw := args[0], args[1]

		switch {
		case key == "confirm_all_actions":
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid value %q for %s", raw, key)
			}
			prefs.ConfirmAllActions = v
		case strings.HasPrefix(key, "auto_execute."):
			level, err := safety.ParseRiskLevel(strings.TrimPrefix(key, "auto_execute."))
			if err != nil {
				return err
			}
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid value %q for %s", raw, key)
			}
			if prefs.AutoExecute == nil {
				prefs.AutoExecute = map[string]bool{}
			}
			prefs.AutoExecute[level.String()] = v
		default:
			return fmt.Errorf("unknown preference key %q", key)
		}

		if err := c.Config.Update(prefs); err != nil {
			return err
		}
		fmt.Printf("✅ %s = %s\n", key, raw)
		return nil
	},
}

var configTrustCmd = &cobra.Command{
	Use:   "trust <command>",
	Short: "Auto-execute an exact command string without prompting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateCommandList(args[0], true)
	},
}

var configUntrustCmd = &cobra.Command{
	Use:   "untrust <command>",
	Short: "Always prompt before running an exact command string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateCommandList(args[0], false)
	},
}

func updateCommandList(command string, trusted bool) error {
	c, err := openCore()
	if err != nil {
		return err
	}
	defer c.Close()

	prefs := c.Config.Preferences()
	if trusted {
		prefs.UntrustedCommands = remove(prefs.UntrustedCommands, command)
		if !slices.Contains(prefs.TrustedCommands, command) {
			prefs.TrustedCommands = append(prefs.TrustedCommands, command)
		}
	} else {
		prefs.TrustedCommands = remove(prefs.TrustedCommands, command)
		if !slices.Contains(prefs.UntrustedCommands, command) {
			prefs.UntrustedCommands = append(prefs.UntrustedCommands, command)
		}
	}
	if err := c.Config.Update(prefs); err != nil {
		return err
	}
	if trusted {
		fmt.Printf("✅ Trusted: %s\n", command)
	} else {
		fmt.Printf("✅ Untrusted: %s\n", command)
	}
	return nil
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configTrustCmd, configUntrustCmd)
	rootCmd.AddCommand(configCmd)
}
