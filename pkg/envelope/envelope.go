// Package envelope defines the query/response JSON envelopes exchanged
// between controller and agent over the bus (spec §3, §6). It is a
// separate package from both pkg/agent and pkg/controller so either can
// depend on it without a cycle.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/freitascorp/fleetmq/pkg/predicate"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

// Query is the controller-to-bus envelope:
// {"seq": N, "which": <predicate>|null, "what": {"<verb>": <payload>}, "group"?: "name"}.
type Query struct {
	Seq   int                `json:"seq"`
	Which predicate.Condition `json:"which"`
	What  verb.Verb           `json:"what"`
	Group string              `json:"group,omitempty"`
}

// Response is the agent-to-bus envelope: either {"id","seq","ok"} on
// success or {"id","seq","error"} on failure.
type Response struct {
	ID    string `json:"id"`
	Seq   int    `json:"seq"`
	Ok    any    `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsError reports whether the response carries an error payload.
func (r Response) IsError() bool { return r.Error != "" }

// EncodeQuery marshals q to its wire form.
func EncodeQuery(q Query) ([]byte, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode query: %w", err)
	}
	return raw, nil
}

// DecodeQuery parses a wire-form query envelope.
func DecodeQuery(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, fmt.Errorf("envelope: decode query: %w", err)
	}
	return q, nil
}

// EncodeResponse marshals r to its wire form. A nil Ok value with no
// Error string still encodes id/seq only, matching the original's
// "ok-result-build returns the bare id/seq envelope when the verb result
// was JSON null" behavior — callers that want to suppress a response
// entirely (a non-matching predicate) should not call EncodeResponse at
// all rather than rely on this.
func EncodeResponse(r Response) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode response: %w", err)
	}
	return raw, nil
}

// DecodeResponse parses a wire-form response envelope.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("envelope: decode response: %w", err)
	}
	return r, nil
}
