package storyteller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookDispatcher delivers commands to the game engine's internal command
// endpoint over HTTP. Delivery is fire-and-forget: transport failures are
// logged, not returned, and the engine deduplicates on the idempotency key.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhookDispatcher builds a dispatcher posting to url.
func NewWebhookDispatcher(url string, timeout time.Duration, log *slog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if log == nil {
		log = logger.Get()
	}
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// DispatchAsync posts the command in the background. Only marshal failures
// are returned to the caller.
func (d *WebhookDispatcher) DispatchAsync(cmd types.CommandEnvelope) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	go d.deliver(cmd.CommandID, body)
	return nil
}

func (d *WebhookDispatcher) deliver(commandID string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.log.Error("failed to build command request", "command_id", commandID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error("command delivery failed", "command_id", commandID, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		d.log.Error("command rejected by engine",
			"command_id", commandID, "status", resp.StatusCode)
	}
}

var _ CommandDispatcher = (*WebhookDispatcher)(nil)
