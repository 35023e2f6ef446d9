package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkflowCommand creates the workflow command and its subcommands.
func NewWorkflowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Move documents through their doctype's workflow",
	}

	cmd.AddCommand(newWorkflowStateCommand(rootOpts))
	cmd.AddCommand(newWorkflowTransitionsCommand(rootOpts))
	cmd.AddCommand(newWorkflowCanCommand(rootOpts))
	cmd.AddCommand(newWorkflowApplyCommand(rootOpts))
	cmd.AddCommand(newWorkflowInitCommand(rootOpts))

	return cmd
}

func newWorkflowStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "state <id>",
		Short:         "Show a document's workflow state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				status, err := s.engine.WorkflowState(orBackground(cmd.Context()), s.actor, args[0])
				if err != nil {
					return s.out.Fail("workflow state failed", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(status)
				}
				line := fmt.Sprintf("%s: %s", status.Workflow, status.CurrentState)
				switch {
				case status.IsSuccess:
					line += " (final, success)"
				case status.IsFinal:
					line += " (final)"
				}
				return s.out.Success(line)
			})
		},
	}
}

func newWorkflowTransitionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "transitions <id>",
		Short:         "List the transitions the actor may take",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ts, err := s.engine.AvailableTransitions(orBackground(cmd.Context()), s.actor, args[0])
				if err != nil {
					return s.out.Fail("transitions failed", err)
				}
				rows := make([][]string, 0, len(ts))
				for _, t := range ts {
					comment := ""
					if t.RequireComment {
						comment = "required"
					}
					roles := strings.Join(t.AllowedRoles, ",")
					if roles == "" {
						roles = "*"
					}
					rows = append(rows, []string{t.Label, t.From, t.To, roles, comment})
				}
				return s.out.Table(ts, []string{"LABEL", "FROM", "TO", "ROLES", "COMMENT"}, rows)
			})
		},
	}
}

// TransitionCheck is the answer of workflow can.
type TransitionCheck struct {
	Transition    string `json:"transition"`
	CanTransition bool   `json:"can_transition"`
	Reason        string `json:"reason,omitempty"`
}

func newWorkflowCanCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "can <id> <label>",
		Short: "Check whether the actor may take a transition",
		Long: `Check a workflow transition without taking it.

Prints "yes", or "no" with the reason: wrong state, missing role,
missing comment or an unmet condition.

Examples:
  doctype workflow can 0190a3c4-... Approve --actor mgr --roles manager
  doctype workflow can 0190a3c4-... Reject --comment "missing PO"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ok, reason, err := s.engine.CanTransition(orBackground(cmd.Context()), s.actor, args[0], args[1], comment)
				if err != nil {
					return s.out.Fail("transition check failed", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(TransitionCheck{Transition: args[1], CanTransition: ok, Reason: reason})
				}
				if ok {
					return s.out.Success("yes")
				}
				return s.out.Success("no: " + reason)
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "transition comment")

	return cmd
}

func newWorkflowApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "apply <id> <label>",
		Short: "Take a workflow transition",
		Long: `Take the workflow transition with the given label.

The transition's actions run in the same write; emails and notifications
are delivered after it commits.

Examples:
  doctype workflow apply 0190a3c4-... Approve --actor mgr --roles manager
  doctype workflow apply 0190a3c4-... Reject --comment "missing PO"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				res, err := s.engine.Transition(orBackground(cmd.Context()), s.actor, args[0], args[1], comment)
				if err != nil {
					return s.out.Fail("transition failed", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(res)
				}
				w := s.out.Writer
				fmt.Fprintf(w, "%s: %s -> %s (version %d)\n", res.Transition, res.From, res.To, res.Version)
				fmt.Fprintf(w, "delivered: %d email(s), %d notification(s)\n", res.Delivered.Emails, res.Delivered.Notifications)
				for _, warning := range res.Warnings {
					fmt.Fprintf(w, "warning: %s\n", warning)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "transition comment")

	return cmd
}

func newWorkflowInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "init <id>",
		Short:         "Put a document into its workflow's initial state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				ws, err := s.engine.InitializeWorkflow(orBackground(cmd.Context()), s.actor, args[0])
				if err != nil {
					return s.out.Fail("workflow init failed", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(ws)
				}
				return s.out.Success(fmt.Sprintf("%s: %s", ws.Workflow, ws.CurrentState))
			})
		},
	}
}
