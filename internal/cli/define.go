package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/doctype/internal/schema"
)

// NewDefineCommand creates the define command.
func NewDefineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "define <file>",
		Short: "Register doctypes, hooks and workflows",
		Long: `Register the doctypes, hooks and workflows of a definition file.

The file format follows the extension: .cue, .json, .jsonc, .yaml or .yml.
The whole file is applied in one transaction; any invalid definition
rejects all of it. Redefining an unchanged doctype keeps its version.

Examples:
  doctype define ./defs/invoice.yaml
  doctype define ./defs/invoice.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				return runDefine(cmd.Context(), s, args[0])
			})
		},
	}
}

func runDefine(ctx context.Context, s *session, path string) error {
	defs, err := schema.LoadFile(path)
	if err != nil {
		return s.out.Fail("failed to load definitions", err)
	}
	s.out.VerboseLog("loaded %d doctypes, %d hooks, %d workflows from %s",
		len(defs.Doctypes), len(defs.Hooks), len(defs.Workflows), path)

	res, err := s.engine.Define(orBackground(ctx), s.actor, defs)
	if err != nil {
		return s.out.Fail("define failed", err)
	}

	rows := make([][]string, 0, len(res.Doctypes))
	for _, dt := range res.Doctypes {
		rows = append(rows, []string{dt.Name, strconv.FormatInt(dt.Version, 10), changedLabel(dt.Changed)})
	}
	if err := s.out.Table(res, []string{"DOCTYPE", "VERSION", "STATUS"}, rows); err != nil {
		return err
	}
	if s.out.Format == "json" {
		return nil
	}
	w := s.out.Writer
	if len(res.Hooks) > 0 {
		fmt.Fprintf(w, "hooks: %s\n", strings.Join(res.Hooks, ", "))
	}
	if len(res.Workflows) > 0 {
		fmt.Fprintf(w, "workflows: %s\n", strings.Join(res.Workflows, ", "))
	}
	for _, issue := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", issue)
	}
	return nil
}

func changedLabel(changed bool) string {
	if changed {
		return "updated"
	}
	return "unchanged"
}

// orBackground returns ctx, or a background context when a command runs
// without one.
func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
