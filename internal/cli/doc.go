package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/doctype/internal/engine"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/queryir"
)

// DocOptions holds flags shared by the doc subcommands.
type DocOptions struct {
	*RootOptions
	Data    string
	File    string
	Name    string
	Parent  string
	Comment string
}

// NewDocCommand creates the doc command and its subcommands.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Create, read and change documents",
		Long: `Create, read and change documents.

Payloads are given with --data (inline JSON) or --file (a JSON file).
Both accept comments and trailing commas.`,
	}

	cmd.AddCommand(newDocCreateCommand(rootOpts))
	cmd.AddCommand(newDocGetCommand(rootOpts))
	cmd.AddCommand(newDocListCommand(rootOpts))
	cmd.AddCommand(newDocUpdateCommand(rootOpts))
	cmd.AddCommand(newDocLifecycleCommand(rootOpts, "delete", "Soft-delete a document"))
	cmd.AddCommand(newDocLifecycleCommand(rootOpts, "submit", "Submit a draft document"))
	cmd.AddCommand(newDocLifecycleCommand(rootOpts, "cancel", "Cancel a submitted document"))
	cmd.AddCommand(newDocLifecycleCommand(rootOpts, "amend", "Create an amended draft of a cancelled document"))
	cmd.AddCommand(newDocExportCommand(rootOpts))

	return cmd
}

func addDataFlags(cmd *cobra.Command, opts *DocOptions) {
	cmd.Flags().StringVar(&opts.Data, "data", "", "document data as JSON")
	cmd.Flags().StringVar(&opts.File, "file", "", "read document data from a JSON file")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "version comment")
}

func newDocCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <doctype>",
		Short: "Create a document",
		Long: `Create a document. Its name comes from --name or the doctype's
naming strategy.

Examples:
  doctype doc create Customer --data '{"customer_name": "Acme"}'
  doctype doc create Invoice --file invoice.json --comment "imported"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(opts.Data, opts.File)
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				doc, err := s.engine.Create(orBackground(cmd.Context()), s.actor, args[0], data, engine.CreateOptions{
					Name:     opts.Name,
					ParentID: opts.Parent,
					Comment:  opts.Comment,
				})
				if err != nil {
					return s.out.Fail("create failed", err)
				}
				s.out.VerboseLog("created %s %s (%s)", doc.Doctype, doc.Name, doc.ID)
				return s.out.Success(doc)
			})
		},
	}

	addDataFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Name, "name", "", "explicit document name")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "parent document id (tree doctypes)")

	return cmd
}

func newDocGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> | get <doctype> <name>",
		Short: "Show a document",
		Long: `Show a document by id, or by doctype and name.

Examples:
  doctype doc get 0190a3c4-...
  doctype doc get Invoice INV-0001`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ctx := orBackground(cmd.Context())
				var (
					doc *model.Document
					err error
				)
				if len(args) == 2 {
					doc, err = s.engine.GetByName(ctx, s.actor, args[0], args[1])
				} else {
					doc, err = s.engine.Get(ctx, s.actor, args[0])
				}
				if err != nil {
					return s.out.Fail("get failed", err)
				}
				return s.out.Success(doc)
			})
		},
	}
}

// DocListOptions holds flags for doc list.
type DocListOptions struct {
	*RootOptions
	Where   []string
	Order   []string
	Limit   int
	Offset  int
	Deleted bool
}

func newDocListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <doctype>",
		Short: "List documents of a doctype",
		Long: `List documents of a doctype.

Filters are field=value (equals) or field~value (contains) and are
combined with AND. Values are read as JSON when they parse. Order by a
field name, prefixed with - for descending.

Examples:
  doctype doc list Invoice
  doctype doc list Invoice --where status=approved --order -created_at
  doctype doc list Invoice --where "tags~urgent" --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := buildSelect(args[0], opts)
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				docs, err := s.engine.List(orBackground(cmd.Context()), s.actor, sel)
				if err != nil {
					return s.out.Fail("list failed", err)
				}
				rows := make([][]string, 0, len(docs))
				for _, d := range docs {
					status := d.DocStatus.String()
					if d.IsDeleted {
						status += " (deleted)"
					}
					rows = append(rows, []string{
						d.Name, d.ID, status,
						strconv.FormatInt(d.VersionNumber, 10),
						d.UpdatedAt.Format(time.RFC3339),
					})
				}
				return s.out.Table(docs, []string{"NAME", "ID", "STATUS", "VERSION", "UPDATED"}, rows)
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter condition (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Order, "order", nil, "sort field, -field for descending (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of documents (0 = all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of documents to skip")
	cmd.Flags().BoolVar(&opts.Deleted, "deleted", false, "include soft-deleted documents")

	return cmd
}

func buildSelect(doctype string, opts *DocListOptions) (queryir.Select, error) {
	filter, err := queryir.ParseConditions(opts.Where)
	if err != nil {
		return queryir.Select{}, WrapExitError(ExitCommandError, "invalid --where", err)
	}
	sel := queryir.Select{
		Doctype:        doctype,
		Filter:         filter,
		IncludeDeleted: opts.Deleted,
		Limit:          opts.Limit,
		Offset:         opts.Offset,
	}
	for _, o := range opts.Order {
		field, desc := strings.CutPrefix(o, "-")
		sel.OrderBy = append(sel.OrderBy, queryir.Order{Field: field, Desc: desc})
	}
	if err := queryir.Validate(sel); err != nil {
		return queryir.Select{}, WrapExitError(ExitCommandError, "invalid query", err)
	}
	return sel, nil
}

func newDocUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a document's data",
		Long: `Replace a document's data. A new version is recorded when the data
changes.

Examples:
  doctype doc update 0190a3c4-... --data '{"qty": 3}' --comment "fix qty"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Data == "" && opts.File == "" {
				return NewExitError(ExitCommandError, "one of --data or --file is required")
			}
			data, err := readData(opts.Data, opts.File)
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				doc, err := s.engine.Update(orBackground(cmd.Context()), s.actor, args[0], data, opts.Comment)
				if err != nil {
					return s.out.Fail("update failed", err)
				}
				return s.out.Success(doc)
			})
		},
	}

	addDataFlags(cmd, opts)

	return cmd
}

// newDocLifecycleCommand builds the single-argument lifecycle commands.
func newDocLifecycleCommand(rootOpts *RootOptions, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:           op + " <id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ctx := orBackground(cmd.Context())
				id := args[0]
				var (
					doc *model.Document
					err error
				)
				switch op {
				case "delete":
					if err = s.engine.SoftDelete(ctx, s.actor, id); err == nil {
						return s.out.Success(fmt.Sprintf("deleted %s", id))
					}
				case "submit":
					doc, err = s.engine.Submit(ctx, s.actor, id)
				case "cancel":
					doc, err = s.engine.Cancel(ctx, s.actor, id)
				case "amend":
					doc, err = s.engine.Amend(ctx, s.actor, id)
				}
				if err != nil {
					return s.out.Fail(op+" failed", err)
				}
				return s.out.Success(doc)
			})
		},
	}
}

// DocExport is the export file format: a document with its full history.
type DocExport struct {
	Document *model.Document        `json:"document"`
	Versions []*model.Version       `json:"versions"`
	Links    []model.Link           `json:"links,omitempty"`
	Workflow *engine.WorkflowStatus `json:"workflow,omitempty"`
}

func newDocExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a document with its version history",
		Long: `Export a document with its versions, links and workflow state as JSON.

The output file is replaced atomically.

Examples:
  doctype doc export 0190a3c4-... -o invoice.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				export, err := exportDocument(cmd, s, args[0])
				if err != nil {
					return s.out.Fail("export failed", err)
				}
				if output == "" {
					return s.out.Success(export)
				}
				b, err := json.MarshalIndent(export, "", "  ")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode export", err)
				}
				if err := atomic.WriteFile(output, bytes.NewReader(append(b, '\n'))); err != nil {
					return WrapExitError(ExitCommandError, "failed to write export", err)
				}
				return s.out.Success(fmt.Sprintf("exported %s to %s", export.Document.Name, output))
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func exportDocument(cmd *cobra.Command, s *session, id string) (*DocExport, error) {
	ctx := orBackground(cmd.Context())
	doc, err := s.engine.Get(ctx, s.actor, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.engine.Versions(ctx, s.actor, id)
	if err != nil {
		return nil, err
	}
	links, err := s.engine.Links(ctx, s.actor, id)
	if err != nil {
		return nil, err
	}
	export := &DocExport{
		Document: doc,
		Versions: versions,
		Links:    links,
	}
	status, err := s.engine.WorkflowState(ctx, s.actor, id)
	switch {
	case err == nil:
		export.Workflow = status
	case errs.Is(err, errs.KindInvalidState):
		// no active workflow
	default:
		return nil, err
	}
	return export, nil
}
