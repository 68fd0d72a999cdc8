package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mstolpe/quotafarm/internal/application"
	"github.com/mstolpe/quotafarm/internal/config"
	"github.com/mstolpe/quotafarm/internal/domain/model"
)

func newRotateCmd() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Process one pending password change request",
		Long: "Reads a single password change request as JSON from the given file\n" +
			"(or stdin with '-'), drives the rotation against the target site, and\n" +
			"reports the outcome to the ledger. Exits 0 only when the rotation\n" +
			"completed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(requestPath)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ledger, err := buildLedger(cfg)
			if err != nil {
				return err
			}
			opener, err := buildSite(cfg)
			if err != nil {
				return err
			}

			svc := application.NewRotationService(ledger, opener, cfg.RotateRetryAt)
			report := svc.Run(cmd.Context(), *req)
			if report.Status != model.RotationCompleted {
				return fmt.Errorf("rotation of request %s failed: %s", req.ID, report.ErrorReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requestPath, "request", "-", "path to the request JSON, or '-' for stdin")
	return cmd
}

func readRequest(path string) (*model.PasswordChangeRequest, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading request payload: %w", err)
	}

	var req model.PasswordChangeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding request payload: %w", err)
	}
	if req.ID == "" {
		return nil, fmt.Errorf("request payload is missing an id")
	}
	return &req, nil
}
