package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"roost/internal/config"
	"roost/internal/logging"
	"roost/internal/services"
	"roost/internal/stator"
	"roost/internal/store"
)

// Identity states.
const (
	StateOutdated = "outdated"
	StateUpdated  = "updated"
)

// refreshInterval spaces out profile refetches for identities pushed back
// into the outdated state.
const refreshInterval = time.Hour

// Fetcher retrieves a remote document in canonical form.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (map[string]any, error)
}

// Service resolves, creates, and refreshes identities.
type Service struct {
	cfg     *config.Config
	store   *store.Store
	fetcher Fetcher
	logger  *slog.Logger
}

// NewService constructs the identity service.
func NewService(cfg *config.Config, st *store.Store, fetcher Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "identity"),
	}
}

// Graph returns the identity state machine: remote profiles are refetched
// whenever an identity is pushed back to outdated.
func (s *Service) Graph() *stator.Graph {
	return stator.NewBuilder("identity").
		AddState(StateOutdated, refreshInterval, s.handleOutdated).
		AddState(StateUpdated, 0, nil).
		AddTransition(StateOutdated, StateUpdated).
		SetInitial(StateOutdated).
		MustBuild()
}

// CreateLocal mints a local identity on the configured domain.
func (s *Service) CreateLocal(ctx context.Context, username string) (*store.Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "create_local", "username is required", nil)
	}
	domain := s.cfg.Server.Domain

	existing, err := s.store.IdentityByActorURI(ctx, localActorURI(domain, username))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrValidation, "identity", "create_local", fmt.Sprintf("identity %s@%s already exists", username, domain), nil)
	}

	return s.store.CreateIdentity(ctx, &store.Identity{
		Username:  username,
		Domain:    domain,
		ActorURI:  localActorURI(domain, username),
		InboxURI:  localActorURI(domain, username) + "inbox/",
		PublicURL: localActorURI(domain, username),
		Local:     true,
	}, StateUpdated, false)
}

// LocalByUsername looks up a local identity on the configured domain.
// Returns nil when no such identity exists.
func (s *Service) LocalByUsername(ctx context.Context, username string) (*store.Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "lookup", "username is required", nil)
	}
	return s.store.IdentityByActorURI(ctx, localActorURI(s.cfg.Server.Domain, username))
}

// ResolveOrCreate returns the local representation of an actor URI,
// fetching and inserting unknown remote actors. Newly created remote
// identities arrive settled; push them to outdated to schedule a refresh.
func (s *Service) ResolveOrCreate(ctx context.Context, actorURI string) (*store.Identity, error) {
	actorURI = strings.TrimSpace(actorURI)
	if actorURI == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "resolve", "actor URI is required", nil)
	}

	existing, err := s.store.IdentityByActorURI(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if s.fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "identity", "resolve", "no fetcher configured for remote actors", nil)
	}
	doc, err := s.fetcher.Fetch(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	identity, err := identityFromActorDocument(actorURI, doc)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateIdentity(ctx, identity, StateUpdated, false)
	if err != nil {
		// Another worker may have inserted the same actor concurrently.
		if resolved, lookupErr := s.store.IdentityByActorURI(ctx, actorURI); lookupErr == nil && resolved != nil {
			return resolved, nil
		}
		return nil, err
	}
	s.logger.Info("remote identity created",
		logging.Int64(logging.FieldEntityID, created.ID),
		logging.String("handle", created.Handle()),
	)
	return created, nil
}

// RequestRefresh schedules a profile refetch for a remote identity.
func (s *Service) RequestRefresh(ctx context.Context, id int64) error {
	return s.store.ForceState(ctx, store.KindIdentity, id, StateOutdated, false)
}

func (s *Service) handleOutdated(ctx context.Context, id int64) (string, error) {
	identity, err := s.store.IdentityByID(ctx, id)
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", services.Wrap(services.ErrNotFound, "identity", "refresh", fmt.Sprintf("identity %d vanished", id), nil)
	}
	if identity.Local {
		return StateUpdated, nil
	}
	if s.fetcher == nil {
		return "", services.Wrap(services.ErrConfiguration, "identity", "refresh", "no fetcher configured", nil)
	}

	doc, err := s.fetcher.Fetch(ctx, identity.ActorURI)
	if err != nil {
		return "", err
	}
	fetched, err := identityFromActorDocument(identity.ActorURI, doc)
	if err != nil {
		return "", err
	}

	identity.Username = fetched.Username
	identity.InboxURI = fetched.InboxURI
	identity.PublicURL = fetched.PublicURL
	if err := s.store.UpdateIdentityProfile(ctx, identity); err != nil {
		return "", err
	}
	return StateUpdated, nil
}

func identityFromActorDocument(actorURI string, doc map[string]any) (*store.Identity, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil || parsed.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "resolve", fmt.Sprintf("invalid actor URI %q", actorURI), err)
	}

	username, _ := doc["preferredUsername"].(string)
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "resolve", fmt.Sprintf("actor %s has no preferredUsername", actorURI), nil)
	}

	inbox, _ := doc["inbox"].(string)
	publicURL, _ := doc["url"].(string)
	if publicURL == "" {
		publicURL = actorURI
	}

	return &store.Identity{
		Username:  username,
		Domain:    strings.ToLower(parsed.Host),
		ActorURI:  actorURI,
		InboxURI:  strings.TrimSpace(inbox),
		PublicURL: strings.TrimSpace(publicURL),
	}, nil
}

func localActorURI(domain, username string) string {
	return fmt.Sprintf("https://%s/@%s/", domain, username)
}
