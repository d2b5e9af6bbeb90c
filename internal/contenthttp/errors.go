package contenthttp

import (
	"context"
	"errors"
	"net/http"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/locale"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/site"
)

// writeError maps resolution failures to responses. Data errors name the
// slot or content type so operators can find the broken entry. A failed
// slot is always a server error, even when its group is absent.
func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	details := map[string]any{}
	var se *site.SlotError
	if errors.As(err, &se) {
		details["slot"] = se.Slot
		details["content_type"] = se.ContentType
	}
	var md *locale.MissingDefaultLocaleContentError
	if errors.As(err, &md) {
		details["content_type"] = md.ContentType
		details["entry_id"] = md.EntryID
		details["default_locale"] = md.DefaultLocale
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.FromContext(ctx).Warn(ctx, "content request abandoned", "err", err.Error())
		api.writeEnvelope(ctx, w, http.StatusServiceUnavailable, "ServiceUnavailableError", "request cancelled", nil)
	case se != nil:
		name := "SlotContentError"
		if md != nil {
			name = "MissingDefaultLocaleContentError"
		}
		log.FromContext(ctx).Error(ctx, err, "site content slot failed", "slot", se.Slot)
		api.writeEnvelope(ctx, w, http.StatusInternalServerError, name, err.Error(), details)
	case errors.Is(err, content.ErrNotFound):
		api.writeEnvelope(ctx, w, http.StatusNotFound, "NotFoundError", "Not Found", details)
	case errors.Is(err, locale.ErrInvalidLocale):
		api.writeBadRequest(ctx, w, "invalid locale")
	case errors.Is(err, locale.ErrMissingDefaultLocale):
		log.FromContext(ctx).Error(ctx, err, "content missing in default locale")
		api.writeEnvelope(ctx, w, http.StatusInternalServerError, "MissingDefaultLocaleContentError", err.Error(), details)
	default:
		log.FromContext(ctx).Error(ctx, err, "content resolution failed")
		api.writeEnvelope(ctx, w, http.StatusInternalServerError, "InternalServerError", "Internal Server Error", details)
	}
}

func (api *API) writeBadRequest(ctx context.Context, w http.ResponseWriter, msg string) {
	api.writeEnvelope(ctx, w, http.StatusBadRequest, "ValidationError", msg, nil)
}

func (api *API) writeEnvelope(ctx context.Context, w http.ResponseWriter, status int, name, msg string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	api.writeJSON(ctx, w, status, errorResponse{
		Error: errorDetail{Status: status, Name: name, Message: msg, Details: details},
	})
}
