// Package whatsapp connects the responder to the WhatsApp Cloud API: an
// inbound webhook that verifies and parses deliveries, and a sender that
// posts text replies through the Graph API.
package whatsapp

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed webhook_schema.json
var webhookSchemaJSON string

var webhookSchema = jsonschema.MustCompileString("webhook_schema.json", webhookSchemaJSON)

// ErrInvalidPayload is returned for deliveries that are not JSON or do not
// match the webhook schema.
var ErrInvalidPayload = errors.New("whatsapp: invalid payload")

type delivery struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []message `json:"messages"`
}

type message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// InboundMessage is one user text message extracted from a delivery.
type InboundMessage struct {
	ID   string
	From string
	Text string
}

// parseDelivery validates body against the webhook schema and returns the
// text messages it carries, in delivery order. Non-text messages and status
// updates are skipped; skipped counts them.
func parseDelivery(body []byte) (msgs []InboundMessage, skipped int, err error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := webhookSchema.Validate(raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var d delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for _, e := range d.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					skipped++
					continue
				}
				msgs = append(msgs, InboundMessage{ID: m.ID, From: m.From, Text: m.Text.Body})
			}
		}
	}
	return msgs, skipped, nil
}
