package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultVapiBaseURL is the hosted Vapi API.
const DefaultVapiBaseURL = "https://api.vapi.ai"

const vapiTimeout = 15 * time.Second

// VapiConfig identifies the assistant and phone number used for calls.
type VapiConfig struct {
	APIKey        string
	PhoneNumberID string
	AssistantID   string
	BaseURL       string
}

// VapiCaller starts outbound assistant calls over the Vapi REST API.
type VapiCaller struct {
	cfg    VapiConfig
	client *http.Client
}

// NewVapiCaller builds a caller. APIKey, PhoneNumberID and AssistantID are required.
func NewVapiCaller(cfg VapiConfig, client *http.Client) (*VapiCaller, error) {
	var missing []string
	if cfg.APIKey == "" {
		missing = append(missing, "VAPI_API_KEY")
	}
	if cfg.PhoneNumberID == "" {
		missing = append(missing, "VAPI_PHONE_NUMBER_ID")
	}
	if cfg.AssistantID == "" {
		missing = append(missing, "VAPI_ASSISTANT_ID")
	}
	if len(missing) > 0 {
		return nil, &NotConfiguredError{Gateway: "vapi", Missing: missing}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVapiBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: vapiTimeout}
	}
	return &VapiCaller{cfg: cfg, client: client}, nil
}

type vapiCallRequest struct {
	PhoneNumberID string            `json:"phoneNumberId"`
	AssistantID   string            `json:"assistantId"`
	Customer      vapiCustomer      `json:"customer"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type vapiCustomer struct {
	Number string `json:"number"`
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// StartVoiceCall places the call and returns the Vapi call id.
func (v *VapiCaller) StartVoiceCall(ctx context.Context, call VoiceCall) (string, error) {
	body, err := json.Marshal(vapiCallRequest{
		PhoneNumberID: v.cfg.PhoneNumberID,
		AssistantID:   v.cfg.AssistantID,
		Customer:      vapiCustomer{Number: call.ToE164},
		Metadata:      call.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("vapi encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/call/phone", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("vapi build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vapi start call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("vapi read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("vapi start call: %w", &StatusError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("vapi decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("vapi start call: missing call id")
	}
	return out.ID, nil
}
