package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type Document struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename"`
	StorageKey  string `json:"storage_key"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256,omitempty"`
	UploadedAt  string `json:"uploaded_at"`
	DownloadURL string `json:"download_url,omitempty"`
}

type UploadResult struct {
	Documents  []Document `json:"documents"`
	Passages   int        `json:"passages"`
	Skipped    int        `json:"skipped"`
	Generation string     `json:"generation"`
	Replicated bool       `json:"replicated"`
}

func printJSON(v any) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}

// UploadCmd uploads PDFs and rebuilds the caller's index from them.
func UploadCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file.pdf>...",
		Short: "Upload PDFs and rebuild your index",
		Long: `Upload one or more PDFs. The server replaces your index with one built
from this batch, so include every document you want to ask about.

Examples:
  docqa upload report.pdf
  docqa upload chapters/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(cmd, args, outputJSON, quiet)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show upload progress")

	return cmd
}

func runUpload(cmd *cobra.Command, paths []string, outputJSON, quiet bool) error {
	for _, p := range paths {
		if !strings.HasSuffix(strings.ToLower(p), ".pdf") {
			return fmt.Errorf("%s is not a PDF file", p)
		}
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var onProgress ProgressFunc
	if !quiet && !outputJSON {
		onProgress = func(current, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\rUploading... %3d%%", current*100/total)
			}
		}
	}

	resp, err := api.UploadFiles("/documents", paths, onProgress)
	if onProgress != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("failed to upload documents: %w", err)
	}

	var result UploadResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		printJSON(result)
		return nil
	}

	fmt.Printf("Indexed %d document(s), %d passages", len(result.Documents), result.Passages)
	if result.Skipped > 0 {
		fmt.Printf(" (%d skipped)", result.Skipped)
	}
	fmt.Println()
	for _, d := range result.Documents {
		fmt.Printf("  %s\n", d.Filename)
	}
	return nil
}

func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents")
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			var docs []Document
			if err := json.Unmarshal(resp.Data, &docs); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				printJSON(docs)
				return nil
			}

			if len(docs) == 0 {
				fmt.Println("No documents uploaded")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("  %-40s %10d bytes  %s\n", d.Filename, d.SizeBytes, d.UploadedAt)
				if d.DownloadURL != "" {
					fmt.Printf("    %s\n", d.DownloadURL)
				}
			}
			return nil
		},
	}
}

func ResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all your documents and your index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("Delete all uploaded documents and the index?") {
				fmt.Println("Aborted")
				return nil
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Post("/reset", nil); err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
			fmt.Println("All documents and the index were deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	input, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(input))
	return answer == "y" || answer == "yes"
}
