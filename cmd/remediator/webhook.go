package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/classifier"
	"github.com/pipelineguard/remediator/pkg/executor"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// failureWebhookPayload is the inbound shape from an upstream alerting
// webhook: a raw, unclassified platform error plus whatever identifying
// metadata the source platform attached.
type failureWebhookPayload struct {
	RawError string            `json:"raw_error"`
	TicketID string            `json:"ticket_id"`
	Platform string            `json:"platform"`
	Metadata map[string]string `json:"metadata"`
}

func newWebhookHandler(exec *executor.Executor, chain *classifier.Chain, log *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleWebhook(w, r, exec, chain, log)
	})
}

func webhookMux(path string, handler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	return mux
}

func handleWebhook(w http.ResponseWriter, r *http.Request, exec *executor.Executor, chain *classifier.Chain, log *logrus.Entry) {
	var payload failureWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.RawError == "" {
		http.Error(w, "raw_error is required", http.StatusBadRequest)
		return
	}
	if payload.TicketID == "" {
		payload.TicketID = uuid.NewString()
	}
	if payload.Metadata == nil {
		payload.Metadata = map[string]string{}
	}
	if payload.Platform != "" {
		payload.Metadata["platform"] = payload.Platform
	}

	ctx := r.Context()
	errorType, autoHealPossible, err := chain.Classify(ctx, payload.RawError, payload.Metadata)
	if err != nil {
		log.WithFields(logging.NewFields().Component("webhook").Error(err).ToLogrus()).Error("classification failed")
		http.Error(w, "classification failed", http.StatusInternalServerError)
		return
	}
	if !autoHealPossible {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"ticket_id":  payload.TicketID,
			"error_type": errorType,
			"status":     "escalated: classifier reported this failure is not auto-healable",
		})
		return
	}

	result := exec.Execute(ctx, executor.RecoveryRequest{
		ErrorType: errorType,
		TicketID:  payload.TicketID,
		Metadata:  payload.Metadata,
	})

	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(result)
}
