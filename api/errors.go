package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pawsy/sessiond/identity"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates the gateway taxonomy to an HTTP response.
func mapError(w http.ResponseWriter, err error) {
	var ie *identity.Error
	if !errors.As(err, &ie) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch ie.Kind {
	case identity.KindInvalidCredentials, identity.KindUnauthorized, identity.KindRefreshFailed:
		writeError(w, http.StatusUnauthorized, ie.Message)
	case identity.KindNotFound:
		writeError(w, http.StatusNotFound, ie.Message)
	case identity.KindBadRequest:
		writeError(w, http.StatusBadRequest, ie.Message)
	case identity.KindRateLimited:
		writeError(w, http.StatusTooManyRequests, ie.Message)
	case identity.KindTimeout:
		writeError(w, http.StatusGatewayTimeout, ie.Message)
	case identity.KindNetwork, identity.KindServer:
		writeError(w, http.StatusBadGateway, ie.Message)
	default:
		writeError(w, http.StatusInternalServerError, ie.Message)
	}
}
