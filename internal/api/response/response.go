package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quantlab/backgrid/internal/core"
)

// Meta rides along with every engine reply.
type Meta struct {
	Engine    string    `json:"engine"`
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the envelope for every successful engine reply.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

const engineName = "backgrid"

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Engine: engineName, Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Accepted writes the 202 envelope for a freshly queued job.
func Accepted(w http.ResponseWriter, jobID string, status any) {
	JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	resp := ErrorResponse{Error: detail}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
