package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"prompt-decoder-server/modules/common/model"
	"prompt-decoder-server/modules/share"
)

var nowFunc = time.Now

var shareBaseURL string

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Encode or decode share tokens",
}

var shareEncodeCmd = &cobra.Command{
	Use:   "encode [result.json]",
	Short: "Turn an analysis result into a share token",
	Long: `Reads an analysis result as JSON (from the file argument or stdin)
and prints its share token, or a full link when --base-url is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		var result model.AnalysisResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("invalid result json: %w", err)
		}

		token, err := share.Encode(result)
		if err != nil {
			return err
		}
		if shareBaseURL == "" {
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}

		link, err := share.Link(shareBaseURL, token)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

var shareDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Print the analysis result carried by a share token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := share.Decode(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	shareEncodeCmd.Flags().StringVar(&shareBaseURL, "base-url", "", "print a link on this base URL instead of the bare token")

	shareCmd.AddCommand(shareEncodeCmd)
	shareCmd.AddCommand(shareDecodeCmd)
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}
