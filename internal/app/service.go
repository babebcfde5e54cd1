package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"tokenforge/api/internal/auth"
	"tokenforge/api/internal/authpw"
	"tokenforge/api/internal/config"
	"tokenforge/api/internal/draft"
	"tokenforge/api/internal/export"
	"tokenforge/api/internal/genai"
	"tokenforge/api/internal/history"
	"tokenforge/api/internal/search"
	"tokenforge/api/internal/store"
	"tokenforge/api/internal/util"
)

// Session is an authenticated draft owner: an anonymous wizard visitor
// or a registered account.
type Session struct {
	Token        string
	RefreshToken string
	OwnerID      string
	OwnerName    string
	IsRegistered bool
	JTI          string
	ExpiresAt    time.Time
}

// SectionContextRef names another section whose saved state should be
// fed into a generation call.
type SectionContextRef struct {
	Namespace string `json:"namespace"`
	SectionID string `json:"sectionId"`
	Label     string `json:"label"`
}

type GenerateInput struct {
	Kind    string             `json:"kind"`
	Inputs  map[string]any     `json:"inputs"`
	Context []SectionContextRef `json:"context"`
}

// SessionStore persists refresh sessions. Both the Postgres and Redis
// backends implement it.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, ownerID, displayName string, isRegistered bool, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Owner, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type draftAdopter interface {
	AdoptDrafts(ctx context.Context, anonOwnerID, userID string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Service wires the draft accessors, the generation gateway, and the
// supporting subsystems behind the HTTP surface. search, history,
// exports, authPW, and adopter are all optional.
type Service struct {
	cfg      config.Config
	drafts   draft.Store
	sections *draft.Sections
	sessions SessionStore
	gateway  genai.Gateway
	searcher *search.Service
	history  *history.Service
	exports  *export.Service
	authPW   *authpw.Service
	adopter  draftAdopter
	pinger   pinger
}

type Options struct {
	Drafts   draft.Store
	Sessions SessionStore
	Gateway  genai.Gateway
	Search   *search.Service
	History  *history.Service
	Exports  *export.Service
	AuthPW   *authpw.Service
	Adopter  draftAdopter
	Pinger   pinger
}

func New(cfg config.Config, opts Options) *Service {
	return &Service{
		cfg:      cfg,
		drafts:   opts.Drafts,
		sections: draft.NewSections(opts.Drafts),
		sessions: opts.Sessions,
		gateway:  opts.Gateway,
		searcher: opts.Search,
		history:  opts.History,
		exports:  opts.Exports,
		authPW:   opts.AuthPW,
		adopter:  opts.Adopter,
		pinger:   opts.Pinger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authPW
}

// StartSession creates an anonymous wizard session. No account is
// involved; drafts saved under it belong to the new owner ID.
func (s *Service) StartSession(ctx context.Context, displayName string) (Session, error) {
	owner := store.Owner{
		ID:          util.NewID("own"),
		DisplayName: strings.TrimSpace(displayName),
	}
	return s.issueSession(ctx, owner)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, owner)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SignUp registers an account and moves the caller's anonymous drafts
// onto it, so wizard progress survives registration.
func (s *Service) SignUp(ctx context.Context, current Session, req authpw.SignUpRequest) (Session, error) {
	if s.authPW == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Account registration is not configured", nil)
	}
	user, err := s.authPW.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	if s.adopter != nil && current.OwnerID != "" && !current.IsRegistered {
		if err := s.adopter.AdoptDrafts(ctx, current.OwnerID, user.ID); err != nil {
			return Session{}, fmt.Errorf("adopt drafts: %w", err)
		}
	}
	return s.issueSession(ctx, store.Owner{ID: user.ID, DisplayName: user.DisplayName, IsRegistered: true})
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	if s.authPW == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Account sign-in is not configured", nil)
	}
	user, err := s.authPW.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, store.Owner{ID: user.ID, DisplayName: user.DisplayName, IsRegistered: true})
}

func (s *Service) issueSession(ctx context.Context, owner store.Owner) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:        owner.ID,
		Name:       owner.DisplayName,
		Registered: owner.IsRegistered,
		JTI:        jti,
		Exp:        expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), owner.ID, owner.DisplayName, owner.IsRegistered, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		OwnerID:      owner.ID,
		OwnerName:    owner.DisplayName,
		IsRegistered: owner.IsRegistered,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates the access token. Claims are
// self-contained; no storage lookup happens on the hot path.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:        token,
		OwnerID:      claims.Sub,
		OwnerName:    claims.Name,
		IsRegistered: claims.Registered,
		JTI:          claims.JTI,
		ExpiresAt:    time.Unix(claims.Exp, 0),
	}, nil
}

// GetDocument returns a namespace's whole draft document.
func (s *Service) GetDocument(ctx context.Context, ownerID, namespace string) (map[string]any, error) {
	doc, err := s.sections.ReadDocument(ctx, ownerID, namespace)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	return map[string]any{"namespace": namespace, "sections": doc}, nil
}

// GetSection returns one section, or found=false when it has never
// been saved.
func (s *Service) GetSection(ctx context.Context, ownerID, namespace, sectionID string) (map[string]any, error) {
	rec, found, err := s.sections.ReadSection(ctx, ownerID, namespace, sectionID)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	return map[string]any{
		"namespace": namespace,
		"sectionId": sectionID,
		"found":     found,
		"section":   sectionPayload(rec),
	}, nil
}

// PutSection replaces a section record wholesale, leaving sibling
// sections untouched.
func (s *Service) PutSection(ctx context.Context, session Session, namespace, sectionID string, rec draft.SectionRecord) (map[string]any, error) {
	if err := s.sections.WriteSection(ctx, session.OwnerID, namespace, sectionID, rec); err != nil {
		return nil, mapNamespaceError(err)
	}
	s.afterSectionSave(ctx, session, namespace, sectionID, rec, "save section "+sectionID)
	return map[string]any{
		"namespace": namespace,
		"sectionId": sectionID,
		"section":   sectionPayload(rec),
	}, nil
}

// PatchInputs shallow-merges wizard fields into a section's inputs.
// Saved generation output stays as it was, even when the inputs that
// produced it change.
func (s *Service) PatchInputs(ctx context.Context, session Session, namespace, sectionID string, inputs map[string]any) (map[string]any, error) {
	rec, err := s.sections.UpdateInputs(ctx, session.OwnerID, namespace, sectionID, inputs)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	s.afterSectionSave(ctx, session, namespace, sectionID, rec, "update inputs for "+sectionID)
	return map[string]any{
		"namespace": namespace,
		"sectionId": sectionID,
		"section":   sectionPayload(rec),
	}, nil
}

// Generate runs the generation gateway for a section and persists the
// result. The gateway never fails; at worst the stored output is a
// fallback the owner can regenerate over. Concurrent generations for
// the same section race at document granularity and the last write
// wins.
func (s *Service) Generate(ctx context.Context, session Session, namespace, sectionID string, input GenerateInput) (map[string]any, error) {
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind is required", nil)
	}
	if _, ok := genai.KindByName(kind); !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "UNKNOWN_KIND", fmt.Sprintf("unknown generation kind %q", kind), map[string]any{"kinds": genai.Kinds()})
	}

	inputs := input.Inputs
	if inputs == nil {
		rec, _, err := s.sections.ReadSection(ctx, session.OwnerID, namespace, sectionID)
		if err != nil {
			return nil, mapNamespaceError(err)
		}
		inputs = rec.Inputs
	}

	extra, err := s.buildContext(ctx, session.OwnerID, input.Context)
	if err != nil {
		return nil, err
	}

	output := s.gateway.Generate(ctx, kind, inputs, extra)

	rec, err := s.sections.RecordResult(ctx, session.OwnerID, namespace, sectionID, inputs, output)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	s.afterSectionSave(ctx, session, namespace, sectionID, rec, "generate "+kind+" for "+sectionID)
	return map[string]any{
		"namespace": namespace,
		"sectionId": sectionID,
		"kind":      kind,
		"section":   sectionPayload(rec),
	}, nil
}

// Aggregate combines saved sections from several namespaces into one
// payload for review screens. Absent sections are skipped.
func (s *Service) Aggregate(ctx context.Context, ownerID string, refs []SectionContextRef) (map[string]any, error) {
	combined, err := s.buildContext(ctx, ownerID, refs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sections": combined}, nil
}

func (s *Service) buildContext(ctx context.Context, ownerID string, refs []SectionContextRef) (map[string]any, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	draftRefs := make([]draft.SectionRef, 0, len(refs))
	for _, ref := range refs {
		draftRefs = append(draftRefs, draft.SectionRef{
			Namespace: ref.Namespace,
			SectionID: ref.SectionID,
			Label:     ref.Label,
		})
	}
	combined, err := s.sections.BuildContext(ctx, ownerID, draftRefs)
	if err != nil {
		return nil, err
	}
	return combined, nil
}

func (s *Service) Search(ctx context.Context, ownerID, text, namespace string, limit, offset int) (search.Response, error) {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.searcher.Search(search.Query{
		OwnerID:         ownerID,
		Text:            text,
		FilterNamespace: namespace,
		Limit:           limit,
		Offset:          offset,
	}), nil
}

// History lists draft snapshots for a namespace, newest first.
func (s *Service) History(ctx context.Context, ownerID, namespace string, limit int) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(http.StatusNotImplemented, "HISTORY_DISABLED", "Draft history is not configured", nil)
	}
	if _, err := draft.NamespaceKey(namespace); err != nil {
		return nil, mapNamespaceError(err)
	}
	items, err := s.history.History(ownerID, namespace, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"namespace": namespace, "history": items}, nil
}

// Restore replaces a namespace's document with an earlier snapshot.
// The restored state is written through the normal store path, so it
// becomes a new snapshot itself.
func (s *Service) Restore(ctx context.Context, session Session, namespace, hash string) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(http.StatusNotImplemented, "HISTORY_DISABLED", "Draft history is not configured", nil)
	}
	key, err := draft.NamespaceKey(namespace)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	raw, err := s.history.GetSnapshot(session.OwnerID, namespace, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "Snapshot not found", nil)
	}
	if err := s.drafts.WriteRaw(ctx, session.OwnerID, key, raw); err != nil {
		return nil, err
	}
	if _, err := s.history.Snapshot(session.OwnerID, namespace, raw, session.OwnerName, "restore "+hash); err != nil {
		return nil, err
	}
	doc, err := s.sections.ReadDocument(ctx, session.OwnerID, namespace)
	if err != nil {
		return nil, err
	}
	return map[string]any{"namespace": namespace, "sections": doc}, nil
}

// Export renders a saved section as a PDF report.
func (s *Service) Export(ctx context.Context, session Session, namespace, sectionID, title string) (*export.Result, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusNotImplemented, "EXPORT_DISABLED", "Report export is not configured", nil)
	}
	rec, found, err := s.sections.ReadSection(ctx, session.OwnerID, namespace, sectionID)
	if err != nil {
		return nil, mapNamespaceError(err)
	}
	if !found {
		return nil, domainError(http.StatusNotFound, "SECTION_NOT_FOUND", "Section has no saved data to export", nil)
	}
	return s.exports.Export(ctx, session.OwnerID, export.Request{
		Namespace: namespace,
		SectionID: sectionID,
		Record:    rec,
		OwnerName: session.OwnerName,
		Title:     title,
	})
}

// Namespaces lists the registered draft namespaces.
func (s *Service) Namespaces() []string {
	return draft.Namespaces()
}

// afterSectionSave runs the best-effort side effects of a save: search
// indexing and a history snapshot. Neither can fail the save.
func (s *Service) afterSectionSave(ctx context.Context, session Session, namespace, sectionID string, rec draft.SectionRecord, message string) {
	if s.searcher != nil {
		s.searcher.IndexSection(ctx, search.SectionEntry{
			OwnerID:   session.OwnerID,
			Namespace: namespace,
			SectionID: sectionID,
			Content:   sectionText(rec),
		})
	}
	if s.history != nil {
		key, err := draft.NamespaceKey(namespace)
		if err != nil {
			return
		}
		raw, err := s.drafts.ReadRaw(ctx, session.OwnerID, key)
		if err != nil || len(raw) == 0 {
			return
		}
		_, _ = s.history.Snapshot(session.OwnerID, namespace, raw, session.OwnerName, message)
	}
}

func sectionPayload(rec draft.SectionRecord) map[string]any {
	inputs := rec.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	return map[string]any{
		"inputs":   inputs,
		"aiOutput": rec.AIOutput,
	}
}

// sectionText flattens a record into searchable text.
func sectionText(rec draft.SectionRecord) string {
	parts := make([]string, 0, len(rec.Inputs)+1)
	keys := make([]string, 0, len(rec.Inputs))
	for key := range rec.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s %v", key, rec.Inputs[key]))
	}
	switch out := rec.AIOutput.(type) {
	case nil:
	case string:
		parts = append(parts, out)
	default:
		if encoded, err := json.Marshal(out); err == nil {
			parts = append(parts, string(encoded))
		}
	}
	return strings.Join(parts, "\n")
}

func mapNamespaceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, draft.ErrUnknownNamespace) {
		return domainError(http.StatusNotFound, "UNKNOWN_NAMESPACE", "Unknown namespace", map[string]any{"namespaces": draft.Namespaces()})
	}
	return err
}
