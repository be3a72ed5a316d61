package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/engine"
)

var (
	invokeUser         string
	invokeCapabilities []string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <ability-id> [json-input]",
	Short: "Invoke an ability locally",
	Long: `Invoke an ability through the execution engine without a transport.
Permission rules, input validation and output validation apply exactly as
they do for remote callers. Input is a JSON object; omit it to send none.`,
	Example: `  abilityd invoke wpv/create-post '{"title":"Hello","content":"World"}' --capabilities publish_posts`,
	Args:    cobra.RangeArgs(1, 2),
	RunE:    runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeUser, "user", "cli", "caller user id")
	invokeCmd.Flags().StringSliceVar(&invokeCapabilities, "capabilities", nil, "caller capabilities (comma separated)")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	var input interface{}
	if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
		if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
			return fmt.Errorf("invalid JSON input: %w", err)
		}
	}

	rt, closeRuntime, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer closeRuntime()

	requestID := tracing.NewRequestID()
	ctx := tracing.WithTransport(tracing.NewRequestContext(cmd.Context(), requestID), "cli")

	output, err := rt.Invoke(ctx, args[0], input, ability.Context{
		UserID:       invokeUser,
		Capabilities: invokeCapabilities,
		RequestID:    requestID,
		Transport:    "cli",
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err != nil {
		body := map[string]interface{}{
			"success": false,
			"code":    string(engine.KindOf(err)),
			"error":   err.Error(),
		}
		var ee *engine.Error
		if errors.As(err, &ee) && len(ee.Violations) > 0 {
			body["violations"] = ee.Violations
		}
		if encErr := enc.Encode(body); encErr != nil {
			return encErr
		}
		return fmt.Errorf("invocation failed: %w", err)
	}

	return enc.Encode(output)
}
