package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/app"
	"hazardline/internal/config"
	"hazardline/internal/domain"
	"hazardline/internal/engine/auth"
	"hazardline/internal/pace"
)

func paceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pace", Short: "Manage PACE assignments"}
	cmd.AddCommand(
		paceShowCmd(),
		paceSetCmd("set-owner", pace.ProcessOwner),
		paceSetCmd("set-approver", pace.Approver),
		paceAddCmd("add-contributor", pace.Contributor),
		paceAddCmd("add-executer", pace.Executer),
		paceUpdateCmd(),
		paceRemoveCmd("remove-contributor", pace.Contributor),
		paceRemoveCmd("remove-executer", pace.Executer),
	)
	return cmd
}

func bindFields(cmd *cobra.Command, f *pace.Fields) {
	var kind string
	cmd.Flags().StringVar(&kind, "type", string(domain.AssigneeUser), "assignee type: user or custom")
	cmd.Flags().StringVar(&f.AssigneeRef, "user", "", "platform user reference")
	cmd.Flags().StringVar(&f.CustomName, "name", "", "custom assignee name")
	cmd.Flags().StringVar(&f.CustomEmail, "email", "", "custom assignee email")
	cmd.Flags().StringVar(&f.CustomInstructions, "instructions", "", "instructions for the assignee")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		f.AssigneeType = domain.AssigneeType(kind)
	}
}

func paceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <hazard-id>",
		Short: "Show PACE assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardRead); err != nil {
					return err
				}
				h, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h.Pace)
				}
				if h.Pace == nil {
					fmt.Printf("%s has no PACE assignments yet\n", h.ID)
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Ref", "Assignee", "Type", "Status", "Response"})
				row := func(ref pace.Ref, s domain.RoleSlot) {
					tw.AppendRow(table.Row{ref.String(), s.DisplayName(), s.AssigneeType, s.Status, oneLine(s.Response)})
				}
				row(pace.Ref{Role: pace.ProcessOwner}, h.Pace.ProcessOwner)
				row(pace.Ref{Role: pace.Approver}, h.Pace.Approver)
				for _, s := range h.Pace.Contributors {
					row(pace.Ref{Role: pace.Contributor, ID: s.ID}, s)
				}
				for _, s := range h.Pace.Executers {
					row(pace.Ref{Role: pace.Executer, ID: s.ID}, s)
				}
				tw.Render()
				return nil
			})
		},
	}
}

func paceSetCmd(use string, role pace.Role) *cobra.Command {
	var f pace.Fields
	cmd := hazardCommand(use+" <hazard-id>", "Assign the "+string(role)+" slot",
		cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.UpsertPaceSlot(ctx, args[0], role, f, actor)
		})
	bindFields(cmd, &f)
	return cmd
}

func paceAddCmd(use string, role pace.Role) *cobra.Command {
	var f pace.Fields
	cmd := &cobra.Command{
		Use:   use + " <hazard-id>",
		Short: "Add a " + string(role),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				add := a.Engine.AddContributor
				if role == pace.Executer {
					add = a.Engine.AddExecuter
				}
				h, id, err := add(ctx, args[0], f, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"slot_id": id, "hazard": h})
				}
				fmt.Printf("Added %s to %s\n", pace.Ref{Role: role, ID: id}, h.ID)
				return nil
			})
		},
	}
	bindFields(cmd, &f)
	return cmd
}

func paceUpdateCmd() *cobra.Command {
	var f pace.Fields
	cmd := hazardCommand("update <hazard-id> <contributor:id|executer:id>", "Edit a Contributor or Executer",
		cobra.ExactArgs(2),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			ref, err := pace.ParseRef(args[1])
			if err != nil {
				return domain.Hazard{}, err
			}
			return a.Engine.UpdatePaceMember(ctx, args[0], ref, f, actor)
		})
	bindFields(cmd, &f)
	return cmd
}

func paceRemoveCmd(use string, role pace.Role) *cobra.Command {
	return hazardCommand(use+" <hazard-id> <slot-id>", "Remove a "+string(role),
		cobra.ExactArgs(2),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			if role == pace.Executer {
				return a.Engine.RemoveExecuter(ctx, args[0], args[1], actor)
			}
			return a.Engine.RemoveContributor(ctx, args[0], args[1], actor)
		})
}

func respondCmd() *cobra.Command {
	return hazardCommand("respond <hazard-id> <slot> <text>", "Record an assignee response (slot: processOwner, approver, contributor:<id>, executer:<id>)",
		cobra.ExactArgs(3),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			ref, err := pace.ParseRef(args[1])
			if err != nil {
				return domain.Hazard{}, err
			}
			return a.Engine.RecordAssigneeResponse(ctx, args[0], ref, args[2], actor)
		})
}
