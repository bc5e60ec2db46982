package httpapi

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = apperrors.Internal("internal error", err)
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{
		"error":   svcErr.Message,
		"code":    string(svcErr.Code),
		"details": svcErr.Details,
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return apperrors.InvalidFormat("body", "JSON")
	}
	return nil
}
