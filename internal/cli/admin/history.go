package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/repository"
)

// HistoryCmd lists the questions a user has asked, newest first.
func HistoryCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's recent questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runHistory(userID, outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runHistory(userID, outputFormat string, limit int, cursorStr string) error {
	ctx := context.Background()

	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return err
	}

	pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := repository.NewQueryLogRepository(pool).ListRecent(ctx, userID, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list queries: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(result.Items))
		for i, l := range result.Items {
			data[i] = map[string]interface{}{
				"id":          l.ID,
				"query":       l.Query,
				"top_k":       l.TopK,
				"passages":    l.Passages,
				"duration_ms": l.DurationMs,
				"failed":      l.Failed,
				"created_at":  l.CreatedAt,
			}
		}
		printJSON(map[string]interface{}{
			"items":    data,
			"cursor":   result.NextCursor,
			"has_more": result.HasMore,
		})
		return nil
	}

	if len(result.Items) == 0 {
		fmt.Printf("No questions recorded for user %s\n", userID)
		return nil
	}
	for _, l := range result.Items {
		status := "ok"
		if l.Failed {
			status = "failed"
		}
		fmt.Printf("  %s  %-6s %4dms  %s\n", l.CreatedAt.Format("2006-01-02 15:04:05"), status, l.DurationMs, l.Query)
	}
	if result.HasMore && result.NextCursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", result.NextCursor)
	}
	return nil
}
