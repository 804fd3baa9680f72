package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultSMSNetBDURL = "https://api.sms.net.bd/sendsms"

// SMSNetBDClient talks to the SMS.NET.BD form API. A response with
// error == 0 is a success and carries data.request_id.
type SMSNetBDClient struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewSMSNetBDClient(apiURL, apiKey, senderID string, timeout time.Duration) *SMSNetBDClient {
	if apiURL == "" {
		apiURL = DefaultSMSNetBDURL
	}
	return &SMSNetBDClient{
		url:      apiURL,
		apiKey:   apiKey,
		senderID: senderID,
		client:   newHTTPClient(timeout),
	}
}

type smsNetBDResponse struct {
	Error int    `json:"error"`
	Msg   string `json:"msg"`
	Data  struct {
		RequestID json.RawMessage `json:"request_id"`
	} `json:"data"`
}

func (c *SMSNetBDClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("msg", message)
	form.Set("to", phoneNumber)
	if c.senderID != "" {
		form.Set("sender_id", c.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var sr smsNetBDResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w status=%d body=%q", err, resp.StatusCode, string(body))
	}

	if sr.Error != 0 {
		reason := sr.Msg
		if reason == "" {
			reason = "SMS sending failed"
		}
		return "", &ProviderError{Code: sr.Error, Reason: reason}
	}

	// request_id arrives as a number or a string depending on the account.
	requestID := strings.Trim(string(sr.Data.RequestID), `"`)
	if requestID == "" || requestID == "null" {
		return "", fmt.Errorf("missing request_id in response body=%q", string(body))
	}
	return requestID, nil
}
