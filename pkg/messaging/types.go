// Package messaging implements the Message Broker (C7): in-process pub/sub
// over typed envelopes, delivered best-effort FIFO per sender. It is not
// durable across restarts — durable semantics belong to the workflow
// engine's execution-context persistence, not to messaging (spec.md §9).
package messaging

import "time"

// EnvelopeType identifies the kind of payload an Envelope carries.
type EnvelopeType string

const (
	// TaskRequest asks a recipient to perform work.
	TaskRequest EnvelopeType = "task_request"
	// TaskResponse reports the outcome of a TaskRequest.
	TaskResponse EnvelopeType = "task_response"
	// Heartbeat signals liveness.
	Heartbeat EnvelopeType = "heartbeat"
	// CoordinationMessage carries fabric coordination signaling (lock/sync events).
	CoordinationMessage EnvelopeType = "coordination_message"
	// AgentErrorMessage reports an agent-side failure.
	AgentErrorMessage EnvelopeType = "agent_error"
	// CustomMessage carries an application-defined payload under a free-form type tag.
	CustomMessage EnvelopeType = "custom"
)

// AgentID identifies a message sender or recipient. Defined here (rather
// than imported from pkg/agents) so messaging has no dependency on agent
// lifecycle; neither package imports the other.
type AgentID string

// Envelope is the unit of exchange on the broker.
type Envelope struct {
	ID            string
	Type          EnvelopeType
	CustomType    string // populated only when Type == CustomMessage
	Sender        AgentID
	Recipients    []AgentID
	Payload       interface{}
	Timestamp     time.Time
	CorrelationID string
}

// BrokerMetrics summarizes broker throughput and health.
type BrokerMetrics struct {
	TotalEnvelopes     int64
	SuccessfulDelivery int64
	FailedDelivery     int64
	AverageLatency     time.Duration
	ActiveSubscribers  int
	LastActivity       time.Time
}
