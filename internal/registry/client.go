package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
)

// Registry reads the external user-preference store.
type Registry interface {
	// ActiveEntries returns a snapshot of all active schedule entries.
	ActiveEntries(ctx context.Context) ([]domain.Entry, error)
}

// Watcher is an optional extension: registries that can push change
// notifications expose them as a channel. Consumers treat a registry
// without a Watcher as interval-resync only.
type Watcher interface {
	Changes() <-chan struct{}
}

// HTTPRegistry fetches entries from a JSON endpoint.
type HTTPRegistry struct {
	url    string
	client *http.Client
}

func NewHTTPRegistry(url string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type wireEntry struct {
	UserID         string `json:"user_id"`
	Timezone       string `json:"timezone"`
	DeliveryTime   string `json:"delivery_time"`
	RecipientID    string `json:"recipient_id"`
	ContactAddress string `json:"contact_address"`
}

// ActiveEntries GETs the registry endpoint and decodes the entry list.
func (r *HTTPRegistry) ActiveEntries(ctx context.Context) ([]domain.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry fetch: status %d", resp.StatusCode)
	}

	var wire []wireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("registry decode: %w", err)
	}

	entries := make([]domain.Entry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, domain.Entry{
			UserID:         w.UserID,
			Timezone:       w.Timezone,
			DeliveryTime:   w.DeliveryTime,
			RecipientID:    w.RecipientID,
			ContactAddress: w.ContactAddress,
		})
	}
	return entries, nil
}
