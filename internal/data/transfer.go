package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"EscrowLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// defaultTransferTimeout bounds the settlement call when no timeout is
// configured. The transfer runs inside the payout transaction, so it must
// not hold row locks indefinitely.
const defaultTransferTimeout = 10 * time.Second

// TransferServiceImpl implements biz.TransferService against the external
// settlement endpoint. With no configured URL it becomes a logging no-op so
// the ledger can run standalone in development.
type TransferServiceImpl struct {
	url    string
	client *http.Client
	logger *log.Helper
}

// NewTransferService creates the settlement client.
func NewTransferService(c *conf.Data, logger log.Logger) *TransferServiceImpl {
	helper := log.NewHelper(logger)

	timeout := defaultTransferTimeout
	var url string
	if c.Transfer != nil {
		url = c.Transfer.Url
		if c.Transfer.Timeout != nil {
			timeout = c.Transfer.Timeout.AsDuration()
		}
	}
	if url == "" {
		helper.Info("transfer endpoint not configured, transfers will only be logged")
	}

	return &TransferServiceImpl{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: helper,
	}
}

type transferRequest struct {
	ProgramID string `json:"program_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// Transfer posts the settlement instruction. A non-2xx response is an error;
// the caller rolls back the ledger mutation.
func (t *TransferServiceImpl) Transfer(ctx context.Context, programID, recipient string, amount int64) error {
	if t.url == "" {
		t.logger.Infow("transfer (no-op)",
			"program_id", programID,
			"recipient", recipient,
			"amount", amount)
		return nil
	}

	body, err := json.Marshal(transferRequest{
		ProgramID: programID,
		Recipient: recipient,
		Amount:    amount,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("transfer rejected: status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
