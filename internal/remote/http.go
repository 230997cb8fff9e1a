package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPAuthority queries the messaging backend over HTTP.
//
// Endpoints:
//
//	GET /channels/{id}           -> ChannelInfo
//	GET /channels?members=a,b,c  -> {"channels": [ChannelInfo, ...]}
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthority creates a client for the given base URL. A zero timeout
// falls back to 10 seconds; verification relies on this bound, there is no
// separate cancellation contract.
func NewHTTPAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthority{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetChannel implements Authority.
func (a *HTTPAuthority) GetChannel(ctx context.Context, channelID string) (*ChannelInfo, error) {
	u := fmt.Sprintf("%s/channels/%s", a.baseURL, url.PathEscape(channelID))

	var info ChannelInfo
	if err := a.getJSON(ctx, u, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FindChannelsByMembers implements Authority.
func (a *HTTPAuthority) FindChannelsByMembers(ctx context.Context, memberNames []string) ([]ChannelInfo, error) {
	q := url.Values{}
	for _, name := range memberNames {
		q.Add("members", name)
	}
	u := fmt.Sprintf("%s/channels?%s", a.baseURL, q.Encode())

	var body struct {
		Channels []ChannelInfo `json:"channels"`
	}
	if err := a.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Channels, nil
}

func (a *HTTPAuthority) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("remote: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
