package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/auth"
)

var (
	apiKeyName   string
	apiKeyOutput string
)

// apiKeyCmd represents the apikey command group
var apiKeyCmd = &cobra.Command{
	Use:     "apikey",
	Aliases: []string{"apikeys", "key"},
	Short:   "Create API keys for the API server",
	Long: `Create API keys for client authentication with the portsweep API server.

The server stores only a bcrypt hash of its key in api.api_key_hash.
Clients send the key in the X-API-Key header or as a bearer token.`,
}

var apiKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key and its hash",
	Long: `Generate a new random API key.

The key is displayed only once. Put the printed hash into api.api_key_hash
(or PORTSWEEP_API_API_KEY_HASH) and hand the key to your clients.`,
	Example: `  portsweep apikey generate --name dashboard
  portsweep apikey generate --name ci --output json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := auth.GenerateAPIKey(apiKeyName)
		if err != nil {
			return err
		}
		return printAPIKey(cmd.OutOrStdout(), key, apiKeyOutput)
	},
}

var apiKeyHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Hash an existing API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !auth.IsValidAPIKeyFormat(args[0]) {
			return fmt.Errorf("invalid API key format, expected %s_ followed by letters and digits", auth.APIKeyPrefix)
		}
		hash, err := auth.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyGenerateCmd)
	apiKeyCmd.AddCommand(apiKeyHashCmd)

	apiKeyGenerateCmd.Flags().StringVar(&apiKeyName, "name", "default", "name of the key")
	apiKeyGenerateCmd.Flags().StringVarP(&apiKeyOutput, "output", "o", "text", "output format: text, json")
}

func printAPIKey(w io.Writer, key *auth.GeneratedAPIKey, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(key)
	case "text", "":
		fmt.Fprintf(w, "Name:    %s\n", key.Name)
		fmt.Fprintf(w, "Key:     %s\n", key.Key)
		fmt.Fprintf(w, "Hash:    %s\n", key.Hash)
		fmt.Fprintf(w, "Created: %s\n", key.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Save the key now, it cannot be shown again. Configure the server with:")
		fmt.Fprintf(w, "  api:\n    api_key_hash: %q\n", key.Hash)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}
