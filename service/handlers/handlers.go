package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/werachapchap/service-payments/service/business"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Emitter queues a job for the event workers. *frame.Service satisfies it.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any) error
}

type PaymentServer struct {
	Emitter  Emitter
	Business business.PaymentBusiness
	Logger   *logrus.Entry
}

func (ps *PaymentServer) logger(name string) *logrus.Entry {
	logger := ps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.WithField("type", name)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// httpStatus maps the business error taxonomy onto HTTP.
func httpStatus(err error) int {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, message string, err error) {
	code := httpStatus(err)
	details := status.Convert(err).Message()
	if code == http.StatusInternalServerError {
		details = ""
	}
	writeJSON(w, code, errorResponse{Error: message, Details: details})
}

func requesterID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

func isProcessor(r *http.Request) bool {
	switch r.Header.Get(headerUserRole) {
	case "admin", "staff":
		return true
	default:
		return false
	}
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
