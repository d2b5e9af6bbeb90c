package contenthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/httpmw"
	"github.com/keithlinneman/sitecontent/internal/locale"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/site"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// PublicType is the content type readable without a token.
const PublicType = "content"

// SnapshotProvider exposes the active bundle when content is bundle backed.
type SnapshotProvider interface {
	Current() (*content.Snapshot, bool)
}

// Options wires the API to its collaborators. Snapshots is optional.
type Options struct {
	Resolver   *locale.Resolver
	Aggregator *site.Aggregator
	Catalog    *locale.Catalog
	Gate       httpmw.Middleware
	Snapshots  SnapshotProvider
	Logger     log.Logger
}

// API implements the content endpoints.
type API struct {
	resolver   *locale.Resolver
	aggregator *site.Aggregator
	catalog    *locale.Catalog
	gate       httpmw.Middleware
	snapshots  SnapshotProvider
	logger     log.Logger
}

// NewAPI validates opts and returns the content routes. Snapshots is
// optional; without it the bundle info route answers 404.
func NewAPI(opts Options) (*API, error) {
	if opts.Resolver == nil || opts.Aggregator == nil || opts.Catalog == nil {
		return nil, xerrors.New("content api requires resolver, aggregator and catalog")
	}
	if opts.Gate == nil {
		return nil, xerrors.New("content api requires an access gate")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		resolver:   opts.Resolver,
		aggregator: opts.Aggregator,
		catalog:    opts.Catalog,
		gate:       opts.Gate,
		snapshots:  opts.Snapshots,
		logger:     opts.Logger,
	}, nil
}

// RegisterRoutes attaches the content endpoints to the router. Static
// segments win over {contentType}, so the public type and the site
// document never reach the generic handlers.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Scope("content_public"))
		r.Get("/api/"+PublicType, api.HandlePublicEntry)
		r.Get("/api/"+PublicType+"/{entryId}", api.HandlePublicEntry)
	})

	r.Group(func(r chi.Router) {
		r.Use(api.gate)
		r.Use(noStore)
		r.With(httpmw.Scope("site_content")).Get("/api/site-content", api.HandleSiteContent)
		r.With(httpmw.Scope("bundle_info")).Get("/api/site-content/bundle", api.HandleBundleInfo)
		r.With(httpmw.Scope("locales")).Get("/api/i18n/locales", api.HandleLocales)
		r.With(httpmw.Scope("content_list")).Get("/api/{contentType}", api.HandleTypeList)
		r.With(httpmw.Scope("content_entry")).Get("/api/{contentType}/{entryId}", api.HandleTypeEntry)
	})
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

var errBadStatus = errors.New("status must be published or draft")

// readStatus parses ?status=. Public routes never see drafts.
func readStatus(r *http.Request, allowDraft bool) (locale.Status, error) {
	switch s := r.URL.Query().Get("status"); s {
	case "", string(locale.StatusPublished):
		return locale.StatusPublished, nil
	case string(locale.StatusDraft):
		if !allowDraft {
			return "", errors.New("drafts are not publicly readable")
		}
		return locale.StatusDraft, nil
	default:
		return "", errBadStatus
	}
}

// HandlePublicEntry serves GET /api/content and /api/content/{entryId}.
// The collection route resolves the singleton entry.
func (api *API) HandlePublicEntry(w http.ResponseWriter, r *http.Request) {
	status, err := readStatus(r, false)
	if err != nil {
		api.writeBadRequest(r.Context(), w, err.Error())
		return
	}
	id := chi.URLParam(r, "entryId")
	if id == "" {
		id = content.SingletonID
	}
	w.Header().Set("Cache-Control", "no-cache")
	api.serveEntry(w, r, locale.Request{ContentType: PublicType, EntryID: id, Status: status})
}

// HandleTypeEntry serves GET /api/{contentType}/{entryId}.
func (api *API) HandleTypeEntry(w http.ResponseWriter, r *http.Request) {
	status, err := readStatus(r, true)
	if err != nil {
		api.writeBadRequest(r.Context(), w, err.Error())
		return
	}
	api.serveEntry(w, r, locale.Request{
		ContentType: chi.URLParam(r, "contentType"),
		EntryID:     chi.URLParam(r, "entryId"),
		Status:      status,
	})
}

func (api *API) serveEntry(w http.ResponseWriter, r *http.Request, req locale.Request) {
	ctx := r.Context()
	req.Locale = r.URL.Query().Get("locale")

	res, err := api.resolver.ResolveWith(ctx, req)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Language", res.Entry.Locale)
	api.writeJSON(ctx, w, http.StatusOK, entryResponse{
		Data: entryData(res.Entry),
		Meta: EntryMeta{RequestedLocale: res.Requested, Fallback: res.Fallback},
	})
}

// HandleTypeList serves GET /api/{contentType}: every entry of the type
// resolved for the requested locale.
func (api *API) HandleTypeList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := readStatus(r, true)
	if err != nil {
		api.writeBadRequest(ctx, w, err.Error())
		return
	}
	loc := r.URL.Query().Get("locale")
	requested, _, err := api.resolver.Chain(loc, locale.RuleChain)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}

	list, err := api.resolver.ResolveList(ctx, chi.URLParam(r, "contentType"), loc, status)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	data := make([]EntryData, len(list))
	for i, res := range list {
		data[i] = entryData(res.Entry)
	}
	w.Header().Set("Content-Language", requested)
	api.writeJSON(ctx, w, http.StatusOK, listResponse{Data: data, Meta: listMeta{Locale: requested, Count: len(data)}})
}

// HandleSiteContent serves the aggregated site document.
func (api *API) HandleSiteContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := readStatus(r, true)
	if err != nil {
		api.writeBadRequest(ctx, w, err.Error())
		return
	}
	doc, err := api.aggregator.Aggregate(ctx, r.URL.Query().Get("locale"), status)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Language", doc.Locale)
	api.writeJSON(ctx, w, http.StatusOK, doc)
}

// HandleLocales lists the configured locales.
func (api *API) HandleLocales(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(r.Context(), w, http.StatusOK, localesResponse{Data: api.catalog.Locales()})
}

// HandleBundleInfo describes the active bundle. 404 when content is not
// bundle backed, 503 before the first bundle is loaded.
func (api *API) HandleBundleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.snapshots == nil {
		api.writeEnvelope(ctx, w, http.StatusNotFound, "NotFoundError", "content is not bundle backed", nil)
		return
	}
	snap, ok := api.snapshots.Current()
	if !ok {
		api.writeEnvelope(ctx, w, http.StatusServiceUnavailable, "ServiceUnavailableError", "no content loaded", nil)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, BundleInfo{
		Version:    snap.Meta.Version,
		SHA256:     snap.Meta.SHA256,
		Source:     snap.Meta.Source,
		Signed:     snap.Meta.Signed,
		Entries:    snap.Index.Len(),
		LoadedAt:   snap.LoadedAt.Truncate(time.Second),
		ServerTime: time.Now().UTC().Truncate(time.Second),
	})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
