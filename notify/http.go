package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Listener is someone who wants to hear about new comments, and how.
type Listener struct {
	User string `yaml:"user"`
	Mode string `yaml:"mode"`
}

// HTTP posts one form per listener to a message relay.
type HTTP struct {
	endpoint  string
	listeners []Listener
	client    *http.Client
}

func NewHTTP(endpoint string, listeners []Listener, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{endpoint: endpoint, listeners: listeners, client: client}
}

func (h *HTTP) Notify(ctx context.Context, parent, user string) error {
	for _, l := range h.listeners {
		form := url.Values{
			"user": {l.User},
			"msg":  {Message(parent, user)},
			"mode": {l.Mode},
		}
		if err := h.post(ctx, form); err != nil {
			return fmt.Errorf("notify %s: %w", l.User, err)
		}
	}
	return nil
}

func (h *HTTP) post(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s answered %s", h.endpoint, resp.Status)
	}
	return nil
}
