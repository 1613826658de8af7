package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// issuedKeyPrefix marks keys minted by `docqa keys create`. Operator keys
// from DOCQA_API_KEYS may have any shape.
const (
	issuedKeyPrefix = "dqa_"
	issuedKeyHexLen = 64
)

// AuthCmd groups the credential commands.
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API key used by the docqa CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd checks an API key against the server and stores it.
func AuthLoginCmd() *cobra.Command {
	var apiURL string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key after checking it with the server",
		Long: `Reads the key from --api-key, DOCQA_API_KEY or stdin, checks it by
listing documents on the server and writes it to ~/.config/docqa/config.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey, _ := cmd.Flags().GetString("api-key")
			if apiKey == "" {
				apiKey = os.Getenv(envAPIKey)
			}
			if apiKey == "" {
				var err error
				if apiKey, err = promptAPIKey(os.Stdin); err != nil {
					return err
				}
			}
			return runAuthLogin(apiKey, apiURL, !skipCheck)
		},
	}

	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "docqa server URL")
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "Save the key without contacting the server")

	return cmd
}

// AuthLogoutCmd removes stored credentials.
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

// AuthStatusCmd shows which credentials the CLI would use.
func AuthStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where the API key comes from and whether the server accepts it",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			check, _ := cmd.Flags().GetBool("check")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			return runAuthStatus(authStatus(flagKey, flagURL, check), outputJSON)
		},
	}

	cmd.Flags().Bool("check", false, "Also ask the server whether the key is accepted")

	return cmd
}

func promptAPIKey(in io.Reader) (string, error) {
	fmt.Print("Enter API key: ")
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// checkKeyFormat rejects empty keys and issued keys that were cut or mistyped.
func checkKeyFormat(apiKey string) error {
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}
	if !strings.HasPrefix(apiKey, issuedKeyPrefix) {
		return nil
	}
	hexPart := apiKey[len(issuedKeyPrefix):]
	if len(hexPart) != issuedKeyHexLen {
		return fmt.Errorf("malformed API key: expected %s followed by %d hex characters", issuedKeyPrefix, issuedKeyHexLen)
	}
	for _, c := range hexPart {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return fmt.Errorf("malformed API key: %q is not a lowercase hex character", c)
		}
	}
	return nil
}

// verifyAPIKey lists the caller's documents, the cheapest authenticated call.
func verifyAPIKey(apiKey, apiURL string) error {
	_, err := NewAPIClientWithConfig(apiKey, apiURL).Get("/documents")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server at %s rejected the API key: %s", apiURL, apiErr.Message)
	}
	if err != nil {
		return fmt.Errorf("could not reach %s (use --no-check to save anyway): %w", apiURL, err)
	}
	return nil
}

func runAuthLogin(apiKey, apiURL string, check bool) error {
	if err := checkKeyFormat(apiKey); err != nil {
		return err
	}
	apiURL = strings.TrimRight(apiURL, "/")
	if check {
		if err := verifyAPIKey(apiKey, apiURL); err != nil {
			return err
		}
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Logged in to %s as %s\n", apiURL, maskAPIKey(apiKey))
	return nil
}

// statusReport is what `docqa auth status` prints.
type statusReport struct {
	Authenticated bool   `json:"authenticated"`
	Source        string `json:"source"`
	APIKey        string `json:"api_key,omitempty"`
	APIURL        string `json:"api_url,omitempty"`
	Accepted      *bool  `json:"accepted,omitempty"`
	CheckError    string `json:"check_error,omitempty"`
}

func authStatus(flagKey, flagURL string, check bool) statusReport {
	source, apiKey, apiURL := GetCredentialSource(flagKey, flagURL)
	report := statusReport{Authenticated: source != SourceNone, Source: string(source)}
	if source == SourceNone {
		return report
	}

	report.APIKey = maskAPIKey(apiKey)
	report.APIURL = apiURL
	if check {
		err := verifyAPIKey(apiKey, apiURL)
		accepted := err == nil
		report.Accepted = &accepted
		if err != nil {
			report.CheckError = err.Error()
		}
	}
	return report
}

func runAuthStatus(report statusReport, outputJSON bool) error {
	if outputJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if !report.Authenticated {
		fmt.Println("Not authenticated")
		fmt.Println("Run 'docqa auth login' or set " + envAPIKey)
		return nil
	}

	fmt.Printf("Source:  %s\n", report.Source)
	fmt.Printf("API key: %s\n", report.APIKey)
	fmt.Printf("Server:  %s\n", report.APIURL)
	if report.Accepted != nil {
		if *report.Accepted {
			fmt.Println("Server accepts the key")
		} else {
			fmt.Printf("Check failed: %s\n", report.CheckError)
		}
	}
	return nil
}

// maskAPIKey keeps the prefix and the last four characters.
func maskAPIKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
