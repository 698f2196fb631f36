package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"hazardline/internal/app"
	"hazardline/internal/config"
	"hazardline/internal/engine/auth"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect hazardline.yml"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate hazardline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				resp := map[string]any{"ok": err == nil}
				if err != nil {
					resp["error"] = err.Error()
				}
				if perr := printJSON(resp); perr != nil {
					return perr
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Println("Config OK")
			return nil
		},
	}
	cmd.AddCommand(show, validate)
	return cmd
}

var errNoKeyStore = errors.New("api keys need the sqlite store driver")

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermAPIKeyManage); err != nil {
					return err
				}
				if a.Keys == nil {
					return errNoKeyStore
				}
				if owner == "" {
					owner = actor.ID
				}
				key, plain, err := a.Keys.IssueAPIKey(ctx, owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": plain})
				}
				fmt.Printf("Key %s for %s:\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	create.Flags().StringVar(&owner, "for", "", "actor the key authenticates as (default: current actor)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermAPIKeyManage); err != nil {
					return err
				}
				if a.Keys == nil {
					return errNoKeyStore
				}
				keys, err := a.Keys.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&owner, "for", "", "only keys for this actor")

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermAPIKeyManage); err != nil {
					return err
				}
				if a.Keys == nil {
					return errNoKeyStore
				}
				if err := a.Keys.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	}
	cmd.AddCommand(create, list, revoke)
	return cmd
}
