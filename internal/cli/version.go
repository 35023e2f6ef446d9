package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/doctype/internal/version"
)

// NewVersionCommand creates the version command and its subcommands.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Inspect and restore document versions",
		Long: `Inspect and restore document versions.

Every version stores a full snapshot with an integrity hash. Reading a
tampered version fails with INTEGRITY_VIOLATION.`,
	}

	cmd.AddCommand(newVersionListCommand(rootOpts))
	cmd.AddCommand(newVersionShowCommand(rootOpts))
	cmd.AddCommand(newVersionDiffCommand(rootOpts))
	cmd.AddCommand(newVersionRestoreCommand(rootOpts))
	cmd.AddCommand(newVersionVerifyCommand(rootOpts))
	cmd.AddCommand(newVersionPruneCommand(rootOpts))

	return cmd
}

func newVersionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <id>",
		Short:         "List a document's versions, newest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				history, err := s.engine.History(orBackground(cmd.Context()), s.actor, args[0])
				if err != nil {
					return s.out.Fail("history failed", err)
				}
				return s.out.Table(history, []string{"VERSION", "CHANGED_BY", "CHANGED_AT", "SUMMARY", "COMMENT"}, historyRows(history))
			})
		},
	}
}

func historyRows(history []version.Entry) [][]string {
	rows := make([][]string, 0, len(history))
	for _, h := range history {
		rows = append(rows, []string{
			strconv.FormatInt(h.Number, 10),
			h.ChangedBy,
			h.ChangedAt.Format(time.RFC3339),
			h.Summary,
			h.Comment,
		})
	}
	return rows
}

func newVersionShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id> <version>",
		Short:         "Show one version with its snapshot and changes",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				v, err := s.engine.Version(orBackground(cmd.Context()), s.actor, args[0], n)
				if err != nil {
					return s.out.Fail("version lookup failed", err)
				}
				return s.out.Success(v)
			})
		},
	}
}

func newVersionDiffCommand(rootOpts *RootOptions) *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "diff <id> <v1> <v2>",
		Short: "Compare two versions",
		Long: `Compare two versions of a document.

Without --field the structural changes (added, modified, removed) are
printed. With --field the field's text is shown as a unified diff.

Examples:
  doctype version diff 0190a3c4-... 1 3
  doctype version diff 0190a3c4-... 1 3 --field notes`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v1, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			v2, err := parseVersion(args[2])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				ctx := orBackground(cmd.Context())
				if field != "" {
					text, err := s.engine.DiffText(ctx, s.actor, args[0], v1, v2, field)
					if err != nil {
						return s.out.Fail("diff failed", err)
					}
					return s.out.Success(text)
				}
				changes, err := s.engine.Compare(ctx, s.actor, args[0], v1, v2)
				if err != nil {
					return s.out.Fail("compare failed", err)
				}
				return s.out.Success(changes)
			})
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "show a unified text diff of one field")

	return cmd
}

func newVersionRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "restore <id> <version>",
		Short: "Restore a document to an earlier version",
		Long: `Restore a document's data to an earlier version. The restore is
recorded as a new version; history is never rewritten.

Examples:
  doctype version restore 0190a3c4-... 2 --comment "undo bulk edit"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				doc, v, err := s.engine.Restore(orBackground(cmd.Context()), s.actor, args[0], n, comment)
				if err != nil {
					return s.out.Fail("restore failed", err)
				}
				s.out.VerboseLog("restored %s to version %d as version %d", doc.Name, n, v.Number)
				return s.out.Success(doc)
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "reason for the restore")

	return cmd
}

func newVersionVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Check the integrity hash of every version",
		Long: `Check the integrity hash of every version of a document.

Exits with 1 when any version fails verification.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				checks, err := s.engine.Verify(orBackground(cmd.Context()), s.actor, args[0])
				if err != nil {
					return s.out.Fail("verify failed", err)
				}
				invalid := 0
				rows := make([][]string, 0, len(checks))
				for _, c := range checks {
					status := "ok"
					if !c.Valid {
						invalid++
						status = "INVALID: " + c.Reason
					}
					rows = append(rows, []string{strconv.FormatInt(c.Number, 10), status})
				}
				if err := s.out.Table(checks, []string{"VERSION", "STATUS"}, rows); err != nil {
					return err
				}
				if invalid > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d version(s) failed verification", invalid))
				}
				return nil
			})
		},
	}
}

func newVersionPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune <id>",
		Short: "Delete all but the newest versions",
		Long: `Delete all but the newest --keep versions of a document.

Examples:
  doctype version prune 0190a3c4-... --keep 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return NewExitError(ExitCommandError, "--keep must be at least 1")
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				n, err := s.engine.Prune(orBackground(cmd.Context()), s.actor, args[0], keep)
				if err != nil {
					return s.out.Fail("prune failed", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(map[string]int64{"pruned": n})
				}
				return s.out.Success(fmt.Sprintf("pruned %d version(s)", n))
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 1, "number of newest versions to keep")

	return cmd
}
