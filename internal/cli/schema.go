// Package cli provides shared CLI utilities for tutor and tutord.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one flag of a command.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// CommandSchema is the machine-readable description of a command tree,
// printed by --help-json so scripts can discover tutor's surface.
type CommandSchema struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Args        string          `json:"args,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Example     string          `json:"example,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// DescribeCommand builds the schema for cmd and everything below it.
func DescribeCommand(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Name:        cmd.Name(),
		Path:        cmd.CommandPath(),
		Args:        positionalArgs(cmd),
		Aliases:     cmd.Aliases,
		Description: cmd.Short,
		Long:        strings.TrimSpace(cmd.Long),
		Example:     strings.TrimSpace(cmd.Example),
		Flags:       describeFlags(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, DescribeCommand(sub))
	}
	return s
}

// positionalArgs returns the part of Use after the command name, e.g.
// "<course-id> [message]".
func positionalArgs(cmd *cobra.Command) string {
	_, rest, _ := strings.Cut(cmd.Use, " ")
	return strings.TrimSpace(rest)
}

func describeFlags(cmd *cobra.Command) []FlagSchema {
	var out []FlagSchema
	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Hidden || f.Name == helpJSONFlag || f.Name == "help" {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			out = append(out, FlagSchema{
				Name:        f.Name,
				Shorthand:   f.Shorthand,
				Type:        f.Value.Type(),
				Default:     f.DefValue,
				Description: f.Usage,
				Required:    required,
				Inherited:   inherited,
			})
		}
	}
	cmd.LocalFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))
	return out
}

// WriteSchema encodes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(DescribeCommand(cmd))
}

// AddHelpJSONFlag registers --help-json on the root command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Print the command schema as JSON")
}

// CheckHelpJSON prints the schema of the addressed command and exits when
// --help-json is present. It runs before Execute so positional argument
// validation does not reject the call.
func CheckHelpJSON(root *cobra.Command) {
	args := os.Args[1:]
	i := slices.Index(args, "--"+helpJSONFlag)
	if i < 0 {
		return
	}
	target := resolveCommand(root, args[:i])
	if err := WriteSchema(os.Stdout, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// resolveCommand walks words until one is not a subcommand name or alias.
func resolveCommand(cmd *cobra.Command, words []string) *cobra.Command {
	for _, w := range words {
		next := subcommand(cmd, w)
		if next == nil {
			break
		}
		cmd = next
	}
	return cmd
}

func subcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}
