package web

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"tradesim/internal/domain/model"
)

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation, model.KindUnknownSymbol, model.KindInsufficientShares:
		return http.StatusBadRequest
	case model.KindInsufficientFunds, model.KindUnauthorized:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindQuoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: "storage", Kind: string(model.KindStorage), Message: "internal error"}
	if e, ok := model.AsError(err); ok {
		body = errorBody{Error: e.Code, Kind: string(e.Kind), Message: e.Msg}
	}
	status := statusFor(model.Kind(body.Kind))
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, body)
}
