package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qa-gateway/internal/upstream"
)

const defaultPingPrompt = "Explain the importance of low-latency LLMs"

var (
	pingModel   string
	pingPrompt  string
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a test prompt to the upstream API",
	Long: `Send one prompt straight to the chat completion API, bypassing the cache,
and print the raw JSON response. On failure the HTTP status and the API's
error body are printed instead.

Examples:
  qagateway ping
  qagateway ping --model gemma-7b-it -p "Say hello"`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().StringVarP(&pingModel, "model", "m", "", "model to ask (default from config)")
	pingCmd.Flags().StringVarP(&pingPrompt, "prompt", "p", defaultPingPrompt, "prompt to send")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", time.Minute, "request timeout")
}

func runPing(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	key := cfg.Upstream.APIKey
	if key == "" {
		return errors.New("GROK_API_KEY is not set")
	}
	fmt.Fprintf(out, "API key found: ...%s\n", maskKey(key))
	fmt.Fprintf(out, "Sending request to %s\n", cfg.Upstream.BaseURL)

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	raw, err := upstream.New(cfg.Upstream, log).Ping(ctx, pingPrompt, pingModel)
	return printPing(out, raw, err)
}

func printPing(out io.Writer, raw string, err error) error {
	if err != nil {
		if code := upstream.StatusCode(err); code != 0 {
			fmt.Fprintf(out, "HTTP error, status code %d\n", code)
		}
		fmt.Fprintln(out, err.Error())
		return errors.New("upstream ping failed")
	}

	fmt.Fprintln(out, "Upstream API responded.")
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(raw), "", "  ") != nil {
		fmt.Fprintln(out, raw)
		return nil
	}
	fmt.Fprintln(out, buf.String())
	return nil
}

// maskKey keeps the last four characters.
func maskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
