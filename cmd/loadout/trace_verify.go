package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/loadout/pkg/kernel/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace file operations",
}

var traceVerifyCmd = &cobra.Command{
	Use:   "verify [trace.jsonl]",
	Short: "Verify trace file integrity (hash chain + signature)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceVerify,
}

func runTraceVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	result, err := trace.VerifyFile(args[0])
	if err != nil {
		return err
	}

	if !result.Valid {
		fmt.Fprintf(out, "%s Chain broken at event %d\n", failStyle.Render(glyphFail), result.BrokenAt)
		if result.Error != "" {
			fmt.Fprintf(out, "  %s\n", result.Error)
		}
		return fmt.Errorf("chain verification failed")
	}

	fmt.Fprintf(out, "%s Chain integrity: %d events, no breaks\n", okStyle.Render(glyphOK), result.EventCount)
	switch {
	case !result.Complete:
		fmt.Fprintf(out, "%s Apply %s on layer %q did not complete\n", warnStyle.Render(glyphWarn), result.RunID, result.Layer)
	case result.FailureKind != "":
		fmt.Fprintf(out, "  apply %s: %s (%s) after %d directives\n", result.RunID, result.Status, result.FailureKind, result.Executed)
	default:
		fmt.Fprintf(out, "  apply %s: %s, %d directives on layer %q for %s\n", result.RunID, result.Status, result.Executed, result.Layer, result.Consumer)
	}

	switch {
	case result.ChainHash == "":
	case result.SignatureOK:
		fmt.Fprintf(out, "%s Signature valid: signed by key %q\n", okStyle.Render(glyphOK), result.SigningKeyID)
	case result.SignatureNoKey:
		fmt.Fprintf(out, "%s Signature present but no %s set to verify\n", warnStyle.Render(glyphWarn), trace.SigningKeyEnv)
	case result.SigningKeyID != "":
		fmt.Fprintf(out, "%s Signature invalid\n", failStyle.Render(glyphFail))
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func init() {
	traceCmd.AddCommand(traceVerifyCmd)
}
