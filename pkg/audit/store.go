// Package audit implements executor.EventSink over Postgres: an
// append-only ledger of every terminal playbook execution, written off the
// timed critical path so a slow or unreachable database never delays a
// remediation decision.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/executor"
	sharederrors "github.com/pipelineguard/remediator/pkg/shared/errors"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Store writes one row per terminal playbook execution and implements
// executor.EventSink.
type Store struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// New wraps an already-opened *sql.DB (expected to use the pgx stdlib
// driver) in a sqlx.DB for named-query convenience.
func New(db *sql.DB, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: sqlx.NewDb(db, "pgx"), log: log}
}

type record struct {
	TicketID             string         `db:"ticket_id"`
	ErrorType            string         `db:"error_type"`
	BreakerKey           string         `db:"breaker_key"`
	Success              bool           `db:"success"`
	Message              string         `db:"message"`
	ActionsTaken         sql.NullString `db:"actions_taken"`
	Attempts             int            `db:"attempts"`
	CircuitBreakerStatus sql.NullString `db:"circuit_breaker_status"`
	ChainedResult        sql.NullString `db:"chained_result"`
	ExecutionTimeSeconds float64        `db:"execution_time_seconds"`
	OccurredAt           time.Time      `db:"occurred_at"`
}

// Emit inserts one audit row. It never mutates or deletes: corrections to a
// remediation's history are new rows, not updates.
func (s *Store) Emit(ctx context.Context, event executor.Event) error {
	actionsJSON, err := json.Marshal(event.Result.ActionsTaken)
	if err != nil {
		return sharederrors.FailedTo("marshal actions_taken", err)
	}
	breakerJSON, err := json.Marshal(event.Result.CircuitBreakerStatus)
	if err != nil {
		return sharederrors.FailedTo("marshal circuit_breaker_status", err)
	}
	chainedJSON, err := json.Marshal(event.Result.ChainedResult)
	if err != nil {
		return sharederrors.FailedTo("marshal chained_result", err)
	}

	r := record{
		TicketID:             event.TicketID,
		ErrorType:            event.ErrorType,
		BreakerKey:           event.BreakerKey,
		Success:              event.Result.Success,
		Message:              event.Result.Message,
		ActionsTaken:         sql.NullString{String: string(actionsJSON), Valid: true},
		Attempts:             event.Result.Attempts,
		CircuitBreakerStatus: sql.NullString{String: string(breakerJSON), Valid: true},
		ChainedResult:        sql.NullString{String: string(chainedJSON), Valid: event.Result.ChainedResult != nil},
		ExecutionTimeSeconds: event.Result.ExecutionTimeSeconds,
		OccurredAt:           event.OccurredAt,
	}

	const query = `
		INSERT INTO remediation_audit (
			ticket_id, error_type, breaker_key, success, message,
			actions_taken, attempts, circuit_breaker_status, chained_result,
			execution_time_seconds, occurred_at
		) VALUES (
			:ticket_id, :error_type, :breaker_key, :success, :message,
			:actions_taken, :attempts, :circuit_breaker_status, :chained_result,
			:execution_time_seconds, :occurred_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		s.log.WithFields(logging.DatabaseFields("insert", "remediation_audit").Error(err).ToLogrus()).
			Warn("failed to write audit record")
		return sharederrors.FailedToWithDetails("insert", "remediation_audit", event.TicketID, err)
	}
	return nil
}

// History returns the most recent audit rows for a given ticket, newest
// first, for operator-surfaced audit queries.
func (s *Store) History(ctx context.Context, ticketID string, limit int) ([]record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []record
	const query = `
		SELECT ticket_id, error_type, breaker_key, success, message,
		       actions_taken, attempts, circuit_breaker_status, chained_result,
		       execution_time_seconds, occurred_at
		FROM remediation_audit
		WHERE ticket_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`
	if err := s.db.SelectContext(ctx, &rows, query, ticketID, limit); err != nil {
		return nil, sharederrors.FailedToWithDetails("query", "remediation_audit", ticketID, err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close audit store: %w", err)
	}
	return nil
}
