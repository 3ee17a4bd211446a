package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
)

type Config struct {
	URL      string        `split_words:"true" required:"true"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Instance string        `split_words:"true" required:"true"`
	Timeout  time.Duration `split_words:"true" default:"10s"`
}

// Client sends text messages through an Evolution API WhatsApp instance.
type Client struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

var _ contractx.Messenger = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("evolution url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	instance := strings.TrimSpace(cfg.Instance)
	if instance == "" {
		return nil, errors.New("evolution instance is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		instance: instance,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Send posts text to contactID, which is a digits-only number or a full JID.
func (c *Client) Send(ctx context.Context, contactID string, text string) error {
	number := ContactFromJID(contactID)
	if number == "" {
		return fmt.Errorf("%w: empty contact id", contractx.ErrSendFailed)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", contractx.ErrSendFailed)
	}

	payload, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(c.instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: evolution status %d: %s", contractx.ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
