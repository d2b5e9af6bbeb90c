package locale

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/text/language"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// Resolution outcomes reported to Metrics.
const (
	OutcomeExact    = "exact"
	OutcomeFallback = "fallback"
	OutcomeMissing  = "missing"
	OutcomeNotFound = "not_found"
)

// Metrics observes resolver outcomes.
type Metrics interface {
	IncLocaleResolution(outcome string)
}

// Rule selects how far a lookup may fall back.
type Rule string

const (
	// RuleChain tries the requested tag, its parents, then the default.
	RuleChain Rule = "chain"
	// RuleDefaultOnly tries the requested tag, then the default.
	RuleDefaultOnly Rule = "default-only"
)

// Status selects which entries are visible.
type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
)

// Options configures a Resolver.
type Options struct {
	Store         content.Store
	DefaultLocale string

	// KnownTypes restricts lookups to these content types. Empty allows any.
	KnownTypes []string

	Logger  log.Logger
	Metrics Metrics
}

// Request is one lookup.
type Request struct {
	ContentType string
	EntryID     string
	Locale      string

	// Status defaults to StatusPublished. StatusDraft also accepts drafts.
	Status Status
	// Rule defaults to RuleChain.
	Rule Rule
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	Entry content.Entry
	// Requested is the canonical form of the requested locale.
	Requested string
	// Fallback is true when Entry.Locale differs from Requested.
	Fallback bool
}

// Resolver picks the localized variant of an entry. Safe for concurrent use.
type Resolver struct {
	store         content.Store
	defaultLocale string
	known         map[string]struct{}
	logger        log.Logger
	metrics       Metrics
}

// NewResolver returns a Resolver reading from opts.Store. The default
// locale is canonicalized; an unparsable one is an error.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, xerrors.New("locale resolver requires a store")
	}
	def, err := content.CanonicalLocale(opts.DefaultLocale)
	if err != nil {
		return nil, xerrors.Wrap(err, "default locale")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	var known map[string]struct{}
	if len(opts.KnownTypes) > 0 {
		known = make(map[string]struct{}, len(opts.KnownTypes))
		for _, t := range opts.KnownTypes {
			known[t] = struct{}{}
		}
	}
	return &Resolver{
		store:         opts.Store,
		defaultLocale: def,
		known:         known,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

// DefaultLocale returns the canonical site default locale.
func (r *Resolver) DefaultLocale() string { return r.defaultLocale }

// Known reports whether contentType may be resolved.
func (r *Resolver) Known(contentType string) bool {
	if r.known == nil {
		return true
	}
	_, ok := r.known[contentType]
	return ok
}

// Resolve returns the published variant of the entry best matching locale.
func (r *Resolver) Resolve(ctx context.Context, contentType, entryID, locale string) (content.Entry, error) {
	res, err := r.ResolveWith(ctx, Request{ContentType: contentType, EntryID: entryID, Locale: locale})
	if err != nil {
		return content.Entry{}, err
	}
	return res.Entry, nil
}

// ResolveWith resolves one request. Errors are *content.NotFoundError for
// an unknown type or group, *MissingDefaultLocaleContentError when the
// group exists but nothing on the chain is servable, ErrInvalidLocale, or
// a store failure passed through unchanged.
func (r *Resolver) ResolveWith(ctx context.Context, req Request) (Resolution, error) {
	if !r.Known(req.ContentType) {
		r.observe(OutcomeNotFound)
		return Resolution{}, &content.NotFoundError{ContentType: req.ContentType}
	}
	requested, chain, err := r.Chain(req.Locale, req.Rule)
	if err != nil {
		return Resolution{}, err
	}

	for _, loc := range chain {
		e, err := r.store.Get(ctx, req.ContentType, req.EntryID, loc)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return Resolution{}, err
		}
		if !visible(e, req.Status) {
			continue
		}
		res := Resolution{Entry: e, Requested: requested, Fallback: e.Locale != requested}
		if res.Fallback {
			r.observe(OutcomeFallback)
			log.FromContext(ctx).Debug(ctx, "locale fallback",
				"content_type", req.ContentType,
				"entry_id", req.EntryID,
				"requested", requested,
				"resolved", e.Locale,
			)
		} else {
			r.observe(OutcomeExact)
		}
		return res, nil
	}

	servable, err := r.hasServable(ctx, req)
	if err != nil {
		return Resolution{}, err
	}
	if !servable {
		r.observe(OutcomeNotFound)
		return Resolution{}, &content.NotFoundError{ContentType: req.ContentType, EntryID: req.EntryID}
	}
	r.observe(OutcomeMissing)
	return Resolution{}, &MissingDefaultLocaleContentError{
		ContentType:   req.ContentType,
		EntryID:       req.EntryID,
		Requested:     requested,
		DefaultLocale: r.defaultLocale,
	}
}

// ResolveList resolves every group of contentType that has a default-locale
// variant, in entry id order. Groups with nothing servable for status (for
// example draft-only groups on a published read) are left out. A group that
// is servable in some locale but cannot fall back to the default fails the
// whole list, as it would for a single entry read.
func (r *Resolver) ResolveList(ctx context.Context, contentType, locale string, status Status) ([]Resolution, error) {
	if !r.Known(contentType) {
		r.observe(OutcomeNotFound)
		return nil, &content.NotFoundError{ContentType: contentType}
	}
	base, err := r.store.List(ctx, contentType, r.defaultLocale)
	if err != nil {
		return nil, err
	}
	out := make([]Resolution, 0, len(base))
	for _, e := range base {
		res, err := r.ResolveWith(ctx, Request{ContentType: contentType, EntryID: e.EntryID, Locale: locale, Status: status})
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, xerrors.Wrapf(err, "list %s: entry %s", contentType, e.EntryID)
		}
		out = append(out, res)
	}
	return out, nil
}

// Chain returns the canonical requested locale and the ordered lookup
// chain for it. An empty locale resolves straight to the default.
func (r *Resolver) Chain(locale string, rule Rule) (string, []string, error) {
	if locale == "" {
		return r.defaultLocale, []string{r.defaultLocale}, nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", nil, xerrors.Mark(xerrors.Wrapf(err, "locale %q", locale), ErrInvalidLocale)
	}
	requested := tag.String()
	chain := []string{requested}
	if rule != RuleDefaultOnly {
		for p := tag.Parent(); p != language.Und; p = p.Parent() {
			if s := p.String(); !slices.Contains(chain, s) {
				chain = append(chain, s)
			}
		}
	}
	if !slices.Contains(chain, r.defaultLocale) {
		chain = append(chain, r.defaultLocale)
	}
	return requested, chain, nil
}

// hasServable reports whether any locale of the group is visible at the
// requested status. Drafts count as absent for published reads.
func (r *Resolver) hasServable(ctx context.Context, req Request) (bool, error) {
	locales, err := r.store.Locales(ctx, req.ContentType, req.EntryID)
	if err != nil {
		return false, err
	}
	if req.Status == StatusDraft {
		return len(locales) > 0, nil
	}
	for _, loc := range locales {
		e, err := r.store.Get(ctx, req.ContentType, req.EntryID, loc)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if e.Published() {
			return true, nil
		}
	}
	return false, nil
}

func visible(e content.Entry, s Status) bool {
	return s == StatusDraft || e.Published()
}

func (r *Resolver) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.IncLocaleResolution(outcome)
	}
}
