package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// DoctypesOptions holds flags for the doctypes command.
type DoctypesOptions struct {
	*RootOptions
	Disable bool
}

// NewDoctypesCommand creates the doctypes command.
func NewDoctypesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DoctypesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "doctypes [name]",
		Short: "List or show doctypes",
		Long: `List the registered doctypes, or show one doctype's definition.

With --disable the named doctype stops accepting writes. Its documents
stay readable and redefining it reactivates it.

Examples:
  doctype doctypes
  doctype doctypes Invoice --format json
  doctype doctypes Invoice --disable`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ctx := orBackground(cmd.Context())
				if len(args) == 0 {
					if opts.Disable {
						return NewExitError(ExitCommandError, "--disable needs a doctype name")
					}
					return listDoctypes(cmd, s)
				}
				if opts.Disable {
					if err := s.engine.DisableDoctype(ctx, s.actor, args[0]); err != nil {
						return s.out.Fail("disable failed", err)
					}
					return s.out.Success(fmt.Sprintf("disabled %s", args[0]))
				}
				dt, err := s.engine.Doctype(ctx, args[0])
				if err != nil {
					return s.out.Fail("doctype lookup failed", err)
				}
				return s.out.Success(dt)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Disable, "disable", false, "disable the named doctype")

	return cmd
}

func listDoctypes(cmd *cobra.Command, s *session) error {
	dts, err := s.engine.Doctypes(orBackground(cmd.Context()))
	if err != nil {
		return s.out.Fail("failed to list doctypes", err)
	}

	rows := make([][]string, 0, len(dts))
	for _, dt := range dts {
		rows = append(rows, []string{
			dt.Name,
			strconv.FormatInt(dt.Version, 10),
			strconv.Itoa(len(dt.Fields)),
			doctypeTraits(dt.Submittable, dt.Single, dt.Tree, dt.Child),
			strconv.FormatBool(dt.IsActive),
		})
	}
	return s.out.Table(dts, []string{"NAME", "VERSION", "FIELDS", "TRAITS", "ACTIVE"}, rows)
}

func doctypeTraits(submittable, single, tree, child bool) string {
	traits := ""
	add := func(on bool, name string) {
		if !on {
			return
		}
		if traits != "" {
			traits += ","
		}
		traits += name
	}
	add(submittable, "submittable")
	add(single, "single")
	add(tree, "tree")
	add(child, "child")
	if traits == "" {
		return "-"
	}
	return traits
}
