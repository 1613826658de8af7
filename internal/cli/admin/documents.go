package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/service"
)

func printJSON(v any) {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonBytes))
}

// withApp loads configuration and wires the services for a one-shot command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()

	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// IndexCmd uploads local PDFs for a user and rebuilds their index.
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file.pdf>...",
		Short: "Upload PDFs for a user and rebuild their index",
		Long:  "Store the given PDFs as a user's uploads and replace the user's index with one built from them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndex,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	outputFormat, _ := cmd.Flags().GetString("output")

	files := make([]service.UploadFile, 0, len(args))
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		files = append(files, service.UploadFile{Name: filepath.Base(path), Content: f})
	}

	return withApp(func(ctx context.Context, a *app) error {
		result, err := a.uploads.Upload(ctx, userID, files)
		if err != nil {
			return fmt.Errorf("failed to index documents: %w", err)
		}

		if outputFormat == "json" {
			names := make([]string, len(result.Documents))
			for i, d := range result.Documents {
				names[i] = d.Filename
			}
			printJSON(map[string]interface{}{
				"user":       userID,
				"documents":  names,
				"passages":   result.Index.Passages,
				"skipped":    result.Index.Skipped,
				"generation": result.Index.Manifest.Generation,
				"replicated": result.Index.Manifest.Replicated,
			})
			return nil
		}

		fmt.Printf("Indexed %d document(s) for %s\n", len(result.Documents), userID)
		for _, d := range result.Documents {
			fmt.Printf("  %s (%d bytes)\n", d.Filename, d.SizeBytes)
		}
		fmt.Printf("Passages: %d (skipped %d)\n", result.Index.Passages, result.Index.Skipped)
		fmt.Printf("Generation: %s\n", result.Index.Manifest.Generation)
		if !result.Index.Manifest.Replicated {
			fmt.Println("Index not yet replicated; the serve worker will retry.")
		}
		return nil
	})
}

// AskCmd answers a question from a user's index.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against a user's documents",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().IntP("top-k", "k", 0, "Number of passages to retrieve (default from DOCQA_TOP_K)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	topK, _ := cmd.Flags().GetInt("top-k")
	outputFormat, _ := cmd.Flags().GetString("output")

	return withApp(func(ctx context.Context, a *app) error {
		result, err := a.query.Ask(ctx, userID, args[0], topK)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			sources := make([]map[string]interface{}, len(result.Sources))
			for i, h := range result.Sources {
				sources[i] = map[string]interface{}{
					"document": h.Source,
					"page":     h.Page,
					"text":     h.Text,
					"distance": h.Distance,
				}
			}
			printJSON(map[string]interface{}{
				"answer":  result.Answer,
				"sources": sources,
			})
			return nil
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, h := range result.Sources {
				fmt.Printf("  %s, page %d (distance %.4f)\n", h.Source, h.Page, h.Distance)
			}
		}
		return nil
	})
}

// ResetCmd deletes everything stored for a user.
func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a user's uploads and index",
		Long:  "Delete a user's uploads, local index, replicated files and ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.uploads.Reset(ctx, userID); err != nil {
					return fmt.Errorf("failed to reset user: %w", err)
				}
				fmt.Printf("User %s reset\n", userID)
				return nil
			})
		},
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

// ReplicateCmd pushes local indexes that have not reached the blob store.
func ReplicateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Replicate pending user indexes to the blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withApp(func(ctx context.Context, a *app) error {
				users := []string{userID}
				if userID == "" {
					pending, err := a.store.PendingReplication()
					if err != nil {
						return err
					}
					users = make([]string, 0, len(pending))
					for _, p := range pending {
						users = append(users, p.UserID)
					}
				}

				if len(users) == 0 {
					fmt.Println("Nothing to replicate")
					return nil
				}

				var failed int
				for _, u := range users {
					if err := a.store.Replicate(ctx, u); err != nil {
						failed++
						fmt.Fprintf(os.Stderr, "  %s: %v\n", u, err)
						continue
					}
					fmt.Printf("  %s: replicated\n", u)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d replications failed", failed, len(users))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringP("user", "u", "", "Only replicate this user's index")

	return cmd
}
