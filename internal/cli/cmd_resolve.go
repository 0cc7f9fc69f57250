package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"onboarding/internal/domain"
	"onboarding/internal/resolver"
)

// snapshotFile is the on-disk form of a resolver input. Records hold the
// raw checkpoint bodies keyed by step id.
type snapshotFile struct {
	EmailVerified       bool                       `json:"email_verified"`
	MobileVerified      bool                       `json:"mobile_verified"`
	RequiresIncomeProof bool                       `json:"requires_income_proof"`
	RequiresPanUpload   bool                       `json:"requires_pan_upload"`
	Records             map[string]json.RawMessage `json:"records"`
}

type resolution struct {
	Screen resolver.Screen `json:"screen"`
	Index  resolver.Index  `json:"index"`
	Total  int             `json:"total"`
	Step   domain.StepID   `json:"step,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <snapshot.json|->",
		Short: "Print the wizard screen a checkpoint snapshot resolves to",
		Long: `Resolve a checkpoint snapshot to the screen the wizard would show.

The snapshot is a JSON object:

  {
    "email_verified": true,
    "mobile_verified": true,
    "records": {"PAN": {"pan": "ABCDE1234F", "name": "Ravi Kumar"}}
  }

Steps missing from "records" are treated as not yet completed. Use "-" to
read the snapshot from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readSnapshot(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			screen := resolver.ResolveScreen(in)
			res := resolution{
				Screen: screen,
				Index:  resolver.Resolve(in),
				Total:  in.Layout().Len(),
				Step:   resolver.Routes[screen],
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "%s\t%d/%d\n", res.Screen, res.Index+1, res.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	return cmd
}

func readSnapshot(path string, stdin io.Reader) (resolver.Input, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return resolver.Input{}, fmt.Errorf("read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return resolver.Input{}, fmt.Errorf("parse snapshot: %w", err)
	}
	in := resolver.Input{
		Records:             make(map[domain.StepID]domain.Record, len(file.Records)),
		EmailVerified:       file.EmailVerified,
		MobileVerified:      file.MobileVerified,
		RequiresIncomeProof: file.RequiresIncomeProof,
		RequiresPanUpload:   file.RequiresPanUpload,
	}
	for name, body := range file.Records {
		step, err := domain.ParseStepID(name)
		if err != nil {
			return resolver.Input{}, err
		}
		payload, err := domain.DecodePayload(step, body)
		if err != nil {
			return resolver.Input{}, fmt.Errorf("decode %s: %w", step, err)
		}
		in.Records[step] = domain.NewRecord(step, payload)
	}
	return in, nil
}
