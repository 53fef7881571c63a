package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wadispatch/pkg/whatsapp/types"
)

// Client is the wire-call abstraction over the messaging provider.
// One call is one attempt: no retry and no rate limiting happen here.
type Client interface {
	SendText(ctx context.Context, channelID, number, text string) (*types.SendMessageResponse, error)
	SendTemplate(ctx context.Context, channelID, number string, req *types.SendTemplateRequest) (*types.SendMessageResponse, error)
	GetChannel(ctx context.Context, channelID string) (*types.Channel, error)
}

type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client with a bounded per-call timeout
func NewClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) SendText(ctx context.Context, channelID, number, text string) (*types.SendMessageResponse, error) {
	payload := types.SendTextRequest{
		Number: number,
		Text:   text,
	}
	return c.sendRequest(ctx, fmt.Sprintf("/message/sendText/%s", channelID), payload)
}

func (c *client) SendTemplate(ctx context.Context, channelID, number string, req *types.SendTemplateRequest) (*types.SendMessageResponse, error) {
	payload := *req
	payload.Number = number
	return c.sendRequest(ctx, fmt.Sprintf("/message/sendTemplate/%s", channelID), payload)
}

func (c *client) GetChannel(ctx context.Context, channelID string) (*types.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/instance/%s", c.baseURL, channelID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.NewSendError(resp.StatusCode, string(body), nil)
	}

	var channel types.Channel
	if err := json.NewDecoder(resp.Body).Decode(&channel); err != nil {
		return nil, fmt.Errorf("failed to decode channel response: %w", err)
	}
	return &channel, nil
}

func (c *client) sendRequest(ctx context.Context, endpoint string, payload interface{}) (*types.SendMessageResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewTransportError(err)
	}
	defer resp.Body.Close()

	var result types.SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, types.NewSendError(resp.StatusCode, "unreadable error response", err)
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &result, types.NewSendError(resp.StatusCode, result.Error, nil)
	}

	return &result, nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
}
