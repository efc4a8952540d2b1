// Package responses writes the JSON envelopes every API handler returns:
// {"data": ...} on success and {"error": {...}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

// retryAfterSeconds is advertised on retryable 409 and 503 responses.
const retryAfterSeconds = 1

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// logFields are lifted from error details onto the log entry.
var logFields = []string{"vendor_id", "payout_id", "order_id", "bank_account_id"}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError maps err to its code's status. Untyped errors become
// CodeInternal. Messages reach the caller only for 4xx codes.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	if meta.Retryable && (meta.HTTPStatus == http.StatusConflict || meta.HTTPStatus == http.StatusServiceUnavailable) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	encodeErr := writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiError(typed, meta)})

	if logg == nil {
		return
	}
	ctx = logg.WithFields(ctx, errorFields(err, typed))
	switch {
	case encodeErr != nil:
		logg.Error(ctx, "response.encode_failed", encodeErr)
	case meta.HTTPStatus >= http.StatusInternalServerError:
		logg.Error(ctx, "request.error", err)
	default:
		logg.Warn(ctx, "request.rejected")
	}
}

func apiError(typed *pkgerrors.Error, meta pkgerrors.Metadata) APIError {
	out := APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

func errorFields(err error, typed *pkgerrors.Error) map[string]any {
	fields := pkgerrors.Dump(err).Fields()
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return fields
	}
	for _, key := range logFields {
		if v, ok := details[key]; ok {
			fields[key] = v
		}
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
