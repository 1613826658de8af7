package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type APIKey struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CreatedAt string  `json:"created_at"`
	RevokedAt *string `json:"revoked_at,omitempty"`
}

type CreatedAPIKey struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// KeysCmd manages the caller's own API keys. The server only offers these
// routes when it runs with a database.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage your API keys",
	}

	cmd.AddCommand(keysCreateCmd())
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysRevokeCmd())

	return cmd
}

func keysCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/apikeys", map[string]string{"name": args[0]})
			if err != nil {
				return fmt.Errorf("failed to create API key: %w", err)
			}

			var key CreatedAPIKey
			if err := json.Unmarshal(resp.Data, &key); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				printJSON(key)
				return nil
			}
			fmt.Printf("Key Name: %s\n", key.Name)
			fmt.Printf("Token: %s\n", key.Token)
			fmt.Println("\nSave this token now. You won't be able to see it again!")
			return nil
		},
	}
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/apikeys")
			if err != nil {
				return fmt.Errorf("failed to list API keys: %w", err)
			}

			var keys []APIKey
			if err := json.Unmarshal(resp.Data, &keys); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				printJSON(keys)
				return nil
			}
			if len(keys) == 0 {
				fmt.Println("No API keys found")
				return nil
			}
			for _, k := range keys {
				status := "active"
				if k.RevokedAt != nil {
					status = "revoked"
				}
				fmt.Printf("  %s: %s (%s, created: %s)\n", k.ID, k.Name, status, k.CreatedAt)
			}
			return nil
		},
	}
}

func keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke one of your API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete("/apikeys/" + args[0]); err != nil {
				return fmt.Errorf("failed to revoke API key: %w", err)
			}
			fmt.Printf("API key %s revoked\n", args[0])
			return nil
		},
	}
}
