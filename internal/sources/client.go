package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls the upstream data-source gateway. Requests are keyed by
// (address, action, subAction, params); responses carry a success flag
// and an opaque payload.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type request struct {
	Address   string            `json:"address"`
	Action    string            `json:"action"`
	SubAction string            `json:"sub_action"`
	Params    map[string]string `json:"params,omitempty"`
}

type response struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
}

// Fetch performs one data-source call and returns the raw payload.
func (c *Client) Fetch(ctx context.Context, address, action, subAction string, params map[string]string) (string, error) {
	body, err := json.Marshal(request{
		Address:   address,
		Action:    action,
		SubAction: subAction,
		Params:    params,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s/%s: %w", action, subAction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s/%s: status %d", action, subAction, resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s/%s: decode: %w", action, subAction, err)
	}
	if !out.Success {
		return "", fmt.Errorf("%s/%s: upstream reported failure", action, subAction)
	}
	return string(out.Payload), nil
}
