package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/session"
)

var (
	errBadRequestBody      = errors.New("Formato de solicitud no válido.")
	errMissingSessionToken = errors.New("Selecciona tu perfil para continuar.")
)

// Messages shown for chat failures.
const (
	chatForbiddenMessage    = "No tienes asignación para esta reunión hoy."
	chatIndexMissingMessage = "Error: Falta crear un índice para 'meetingId' y 'timestamp'."
	chatLoadFailedMessage   = "Error al cargar mensajes. Verifica la configuración de la base de datos."
	chatSendFailedMessage   = "Error al enviar el mensaje."
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, meeting.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "No tienes permiso para realizar esta acción.",
		})
	case errors.Is(err, chat.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "CHAT_FORBIDDEN",
			Message:   chatForbiddenMessage,
		})
	case errors.Is(err, meeting.ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "No se encontró la reunión."})
	case errors.Is(err, meeting.ErrMeetingAlreadyActive):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "MEETING_ALREADY_ACTIVE",
			Message:   "Ya hay una reunión en curso. Finalízala antes de iniciar otra.",
		})
	case errors.Is(err, meeting.ErrInvalidTransition):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "INVALID_TRANSITION",
			Message:   "La reunión no puede pasar a ese estado.",
		})
	case errors.Is(err, chat.ErrChatIndexMissing):
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "CHAT_INDEX_MISSING",
			Message:   chatIndexMissingMessage,
		})
	case errors.Is(err, chat.ErrEmptyMessage):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "El mensaje está vacío."})
	case errors.Is(err, chat.ErrMessageTooLong):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: "El mensaje es demasiado largo."})
	case errors.Is(err, chat.ErrRateLimited):
		r.writeJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Message: "Estás enviando mensajes demasiado rápido."})
	case errors.Is(err, session.ErrUnknownProfile):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_UNKNOWN_PROFILE",
			Message:   "El perfil seleccionado no existe.",
		})
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionExpired):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_SESSION_EXPIRED",
			Message:   "La sesión no es válida. Selecciona tu perfil de nuevo.",
		})
	case errors.Is(err, persistence.ErrUnavailable):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: "No se pudo conectar con la base de datos. Verifica tu conexión o permisos."})
	default:
		var vErr *meeting.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "Hay errores en los datos enviados.",
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "Se produjo un error interno del servidor."})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "La solicitud no es válida."
	case http.StatusUnauthorized:
		return "Selecciona tu perfil para continuar."
	case http.StatusForbidden:
		return "No tienes permiso para realizar esta acción."
	case http.StatusNotFound:
		return "No se encontró el recurso solicitado."
	case http.StatusConflict:
		return "La solicitud entra en conflicto con el estado actual."
	case http.StatusUnprocessableEntity:
		return "Hay errores en los datos enviados."
	default:
		return "Se produjo un error interno del servidor."
	}
}

func localizeValidationErrors(vErr *meeting.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "date is required":
		return "La fecha es obligatoria."
	case "date must use YYYY-MM-DD":
		return "La fecha debe tener el formato AAAA-MM-DD."
	case "type must be Miércoles or Sábado":
		return "El tipo debe ser Miércoles o Sábado."
	case "status must be scheduled, in-progress or completed":
		return "El estado debe ser scheduled, in-progress o completed."
	case "unknown position":
		return "La asignación no existe."
	case "name is not in the roster":
		return "El hermano no está en la lista."
	case "from must use YYYY-MM-DD":
		return "La fecha de inicio debe tener el formato AAAA-MM-DD."
	case "until must use YYYY-MM-DD":
		return "La fecha de fin debe tener el formato AAAA-MM-DD."
	default:
		if strings.HasPrefix(message, "recurrence:") {
			return "El periodo indicado no es válido."
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
