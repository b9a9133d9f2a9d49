package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"roost/internal/config"
	"roost/internal/services"
)

const activityContentType = `application/activity+json`

// Deliverer posts activity envelopes to remote inboxes.
type Deliverer struct {
	client    *http.Client
	userAgent string
}

// NewDeliverer builds a deliverer from federation config.
func NewDeliverer(cfg *config.Config) *Deliverer {
	timeout := time.Duration(cfg.Federation.DeliveryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Deliverer{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.Federation.UserAgent,
	}
}

// Deliver POSTs a document to an inbox. Non-2xx responses are transient
// errors so deliveries are retried via lock expiry rather than dropped.
func (d *Deliverer) Deliver(ctx context.Context, inboxURI string, document map[string]any) error {
	body, err := json.Marshal(document)
	if err != nil {
		return services.Wrap(services.ErrValidation, "federation", "deliver", "encode document", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURI, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrValidation, "federation", "deliver", fmt.Sprintf("build request for %s", inboxURI), err)
	}
	req.Header.Set("Content-Type", activityContentType)
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "federation", "deliver", fmt.Sprintf("deliver to %s", inboxURI), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrTransient, "federation", "deliver", fmt.Sprintf("inbox %s returned %d", inboxURI, resp.StatusCode), nil)
	}
	return nil
}
