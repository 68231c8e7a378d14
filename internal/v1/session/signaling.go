package session

import (
	"encoding/json"

	"github.com/peercall/broker/internal/v1/metrics"
)

// maxEnvelopeBytes bounds a serialized signaling envelope. Oversize
// envelopes are dropped silently, matching the no-reply policy for all
// signaling validation failures (no amplification toward the sender).
const maxEnvelopeBytes = 64 * 1024

// signalEnvelope is the relayed shape. Exactly one of the three payload
// fields is set depending on the event; the broker never interprets its
// contents, it only re-addresses the envelope.
type signalEnvelope struct {
	To        string          `json:"to,omitempty"`
	From      ConnectionID    `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (e *signalEnvelope) body() json.RawMessage {
	switch {
	case e.Offer != nil:
		return e.Offer
	case e.Answer != nil:
		return e.Answer
	default:
		return e.Candidate
	}
}

// handleSignal validates and forwards one offer/answer/candidate envelope.
// The relay adds no ordering beyond the transport's per-pair order and
// queues nothing across reconnects: a missing target means a dropped
// envelope, not a deferred one.
func (h *Hub) handleSignal(c *Client, event string, raw json.RawMessage) string {
	if len(raw) > maxEnvelopeBytes {
		metrics.EnvelopesDropped.WithLabelValues("oversize").Inc()
		return "dropped"
	}

	var env signalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.To == "" {
		metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
		return "dropped"
	}

	body := env.body()
	if len(body) == 0 || string(body) == "null" {
		metrics.EnvelopesDropped.WithLabelValues("empty_payload").Inc()
		return "dropped"
	}

	target, ok := h.lookup(ConnectionID(env.To))
	if !ok {
		// Peer already gone; signaling toward departed peers is expected
		// during teardown and is not an error.
		metrics.EnvelopesDropped.WithLabelValues("no_target").Inc()
		return "dropped"
	}

	forward := signalEnvelope{From: c.ID}
	switch event {
	case EventOffer:
		forward.Offer = body
	case EventAnswer:
		forward.Answer = body
	case EventICECandidate:
		forward.Candidate = body
	}
	target.sendFrame(event, forward)
	return "ok"
}
