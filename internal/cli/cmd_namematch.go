package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"onboarding/internal/namematch"
	dErrors "onboarding/pkg/domain-errors"
)

func newNameMatchCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "namematch <name> <name>",
		Short: "Decide whether two person names refer to the same holder",
		Long: `Compare two names the way UPI account holder validation does.

Names are normalized (case, punctuation, honorifics) and match when they
share enough significant tokens.

Examples:
  onboarding namematch "Ravi Kumar" "KUMAR RAVI"
  onboarding namematch --strict "Ravi Kumar" "Suresh Kumar"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := namematch.Matches(args[0], args[1])
			result := "mismatch"
			if ok {
				result = "match"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%q\t%q\n", result,
				namematch.Normalize(args[0]), namematch.Normalize(args[1]))
			if strict && !ok {
				return dErrors.New(dErrors.CodeMismatch, "names do not match")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero on mismatch")
	return cmd
}
