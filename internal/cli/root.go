package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // overrides database.path from the config
	ConfigPath string
	Actor      string
	Roles      []string
	Superuser  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the doctype CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "doctype",
		Short: "Schema-driven document engine",
		Long: `Define document types at runtime and manage their documents.

Documents are validated against their doctype, versioned with integrity
hashes, processed by hooks and moved through approval workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to config file")
	flags.StringVar(&opts.Actor, "actor", "", "actor id performing the operation (default: system)")
	flags.StringSliceVar(&opts.Roles, "roles", nil, "roles of --actor")
	flags.BoolVar(&opts.Superuser, "superuser", false, "treat --actor as a superuser")

	// Add subcommands
	cmd.AddCommand(NewDefineCommand(opts))
	cmd.AddCommand(NewDoctypesCommand(opts))
	cmd.AddCommand(NewDocCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewWorkflowCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
