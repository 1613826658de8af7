package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

type QueryLog struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	Passages   int    `json:"passages"`
	DurationMs int64  `json:"duration_ms"`
	Failed     bool   `json:"failed"`
	CreatedAt  string `json:"created_at"`
}

type HistoryPage struct {
	Items   []QueryLog `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

func HistoryCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the questions you asked recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(historyPath(limit, cursor))
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}

			var page HistoryPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				printJSON(page)
				return nil
			}

			if len(page.Items) == 0 {
				fmt.Println("No questions asked yet")
				return nil
			}
			for _, l := range page.Items {
				marker := " "
				if l.Failed {
					marker = "!"
				}
				fmt.Printf("%s %s  %s\n", marker, l.CreatedAt, l.Query)
			}
			if page.HasMore {
				fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func historyPath(limit int, cursor string) string {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) == 0 {
		return "/history"
	}
	return "/history?" + params.Encode()
}
