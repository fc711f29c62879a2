package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrProcessStatus = attribute.Key("consumer.process.status")
	AttrFetchStatus   = attribute.Key("consumer.fetch.status")
	AttrCommitStatus  = attribute.Key("consumer.commit.status")
	AttrErrorAction   = attribute.Key("consumer.error.action")
	AttrErrorPhase    = attribute.Key("consumer.error.phase")
	AttrEngineMode    = attribute.Key("consumer.engine.mode")
	AttrRebalanceKind = attribute.Key("consumer.rebalance.kind")
	AttrCommitPhase   = attribute.Key("consumer.commit.phase")
)

// Status values
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
	StatusDLQ     = "dlq"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Engine mode values
const (
	EngineModePlain       = "plain"
	EngineModeCommittable = "committable"
	EngineModePartitioned = "partitioned"
)

// Rebalance kind values
const (
	RebalanceAssigned = "assigned"
	RebalanceRevoked  = "revoked"
)

// Commit phase values
const (
	CommitPhaseRegular = "regular"
	CommitPhaseRevoke  = "revoke"
	CommitPhaseFinal   = "final"
)
