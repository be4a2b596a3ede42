package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/liveness-check/internal/imageprocessor"
	"github.com/example/liveness-check/internal/liveness"
	"github.com/example/liveness-check/internal/livenessclient"
	"github.com/example/liveness-check/internal/usecase"
)

var errCheckFailed = errors.New("liveness check failed")

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <image>",
		Short: "Run one liveness check against an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capture, _ := cmd.Flags().GetBool("capture")
			raw, _ := cmd.Flags().GetBool("raw")

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			asset := imageprocessor.Asset{
				Data:      data,
				MediaType: mime.TypeByExtension(filepath.Ext(args[0])),
				Filename:  filepath.Base(args[0]),
			}
			if capture {
				asset.Filename = ""
			}

			outcome := a.uc.Check(cmd.Context(), asset)
			return printOutcome(cmd.OutOrStdout(), outcome, raw)
		},
	}

	cmd.Flags().Bool("capture", false, "Submit as a camera capture (no filename)")
	cmd.Flags().Bool("raw", false, "Print the raw service payload")
	cmd.Flags().Duration("timeout", 0, "Timeout for the liveness service call")
	return cmd
}

// printOutcome writes a human readable result and returns errCheckFailed for
// every outcome other than a verdict so the process exits non-zero.
func printOutcome(w io.Writer, outcome usecase.Outcome, raw bool) error {
	switch outcome.Kind {
	case usecase.OutcomeVerdict:
		fmt.Fprintf(w, "Result:     %s\n", outcome.Verdict.Tag)
		fmt.Fprintf(w, "Confidence: %s\n", outcome.Verdict.DisplayedConfidence())
		fmt.Fprintf(w, "Request:    %s\n", outcome.RequestID)
		if raw && outcome.Response != nil {
			fmt.Fprintln(w, rawPayload(outcome.Response))
		}
		return nil
	case usecase.OutcomeDecodeError:
		var decodeErr *imageprocessor.DecodeError
		if errors.As(outcome.Err, &decodeErr) {
			fmt.Fprintf(w, "Could not read image: %s\n", decodeErr.Reason)
		}
	case usecase.OutcomeTransportError:
		var transportErr *livenessclient.TransportError
		if errors.As(outcome.Err, &transportErr) && transportErr.Timeout() {
			fmt.Fprintln(w, "Could not reach the liveness service: request timed out")
		} else {
			fmt.Fprintln(w, "Could not reach the liveness service")
		}
	case usecase.OutcomeClassificationError:
		var classErr *liveness.ClassificationError
		if errors.As(outcome.Err, &classErr) {
			fmt.Fprintln(w, classErr.Error())
		}
	}
	return errCheckFailed
}

func rawPayload(resp *liveness.Response) string {
	if resp.Payload == nil {
		return string(resp.Body)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Payload, "", "  "); err != nil {
		return string(resp.Body)
	}
	return buf.String()
}
