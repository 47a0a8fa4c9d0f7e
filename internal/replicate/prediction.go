package replicate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prediction statuses reported by the provider.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// EventCompleted is the only webhook event the pipeline subscribes to.
const EventCompleted = "completed"

// PredictionRequest creates a prediction. Exactly one of Model
// ("owner/name") or Version ("owner/name:id" or a bare id) must be set.
type PredictionRequest struct {
	Model               string      `json:"-"`
	Version             string      `json:"version,omitempty"`
	Input               interface{} `json:"input"`
	Webhook             string      `json:"webhook,omitempty"`
	WebhookEventsFilter []string    `json:"webhook_events_filter,omitempty"`
}

// Prediction is both the create response and the webhook callback payload.
type Prediction struct {
	ID      string            `json:"id"`
	Model   string            `json:"model,omitempty"`
	Version string            `json:"version,omitempty"`
	Status  string            `json:"status"`
	Output  Output            `json:"output,omitempty"`
	Error   json.RawMessage   `json:"error,omitempty"`
	URLs    map[string]string `json:"urls,omitempty"`
}

// ErrorMessage returns the provider's error text, if any.
func (p *Prediction) ErrorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// Output holds prediction output URLs. Text-to-image models report a single
// URL string and the upscaler reports a list; both decode to a slice.
type Output []string

func (o *Output) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*o = nil
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*o = nil
			return nil
		}
		*o = Output{s}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode output list: %w", err)
		}
		*o = list
		return nil
	}
	return fmt.Errorf("unsupported output %s", trimmed)
}

// First returns the first output URL, or "" if there is none.
func (o Output) First() string {
	if len(o) == 0 {
		return ""
	}
	return o[0]
}
