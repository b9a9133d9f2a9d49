package activities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"roost/internal/config"
	"roost/internal/identity"
	"roost/internal/logging"
	"roost/internal/notifications"
	"roost/internal/services"
	"roost/internal/stator"
	"roost/internal/store"
)

// Post states.
const (
	PostStateNew       = "new"
	PostStateFannedOut = "fanned_out"
)

// FanOut states.
const (
	FanOutStateQueued    = "queued"
	FanOutStateDelivered = "delivered"
	FanOutStateFailed    = "failed"
)

// fanOutTryInterval spaces re-attempts of the fan-out handler when it asks
// to run again.
const fanOutTryInterval = 300 * time.Second

// Deliverer posts an activity document to a remote inbox.
type Deliverer interface {
	Deliver(ctx context.Context, inboxURI string, document map[string]any) error
}

// Service implements the post lifecycle and fan-out pipeline.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	identities *identity.Service
	deliverer  Deliverer
	fetcher    identity.Fetcher
	notifier   notifications.Service
	logger     *slog.Logger
}

// NewService constructs the activities service.
func NewService(cfg *config.Config, st *store.Store, identities *identity.Service, deliverer Deliverer, fetcher identity.Fetcher, notifier notifications.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		identities: identities,
		deliverer:  deliverer,
		fetcher:    fetcher,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "activities"),
	}
}

// Identities exposes the identity service the pipeline resolves actors
// with.
func (s *Service) Identities() *identity.Service {
	return s.identities
}

// PostGraph returns the post state machine.
func (s *Service) PostGraph() *stator.Graph {
	return stator.NewBuilder("post").
		AddState(PostStateNew, fanOutTryInterval, s.handleNewPost).
		AddState(PostStateFannedOut, 0, nil).
		AddTransition(PostStateNew, PostStateFannedOut).
		SetInitial(PostStateNew).
		MustBuild()
}

// FanOutGraph returns the fan-out state machine.
func (s *Service) FanOutGraph() *stator.Graph {
	return stator.NewBuilder("fanout").
		AddState(FanOutStateQueued, fanOutTryInterval, s.handleQueuedFanOut).
		AddState(FanOutStateDelivered, 0, nil).
		AddState(FanOutStateFailed, 0, nil).
		AddTransition(FanOutStateQueued, FanOutStateDelivered).
		AddTransition(FanOutStateQueued, FanOutStateFailed).
		SetInitial(FanOutStateQueued).
		MustBuild()
}

// CreateLocal mints a local post in the new state; the scheduler fans it
// out. The sensitive flag follows from the presence of a summary.
func (s *Service) CreateLocal(ctx context.Context, author *store.Identity, content, summary string) (*store.Post, error) {
	if author == nil || !author.Local {
		return nil, services.Wrap(services.ErrValidation, "activities", "create_local", "author must be a local identity", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, services.Wrap(services.ErrValidation, "activities", "create_local", "content is required", nil)
	}
	summary = strings.TrimSpace(summary)

	objectURI := fmt.Sprintf("https://%s/@%s/posts/%s/", author.Domain, author.Username, uuid.NewString())
	return s.store.CreatePost(ctx, &store.Post{
		AuthorID:   author.ID,
		Local:      true,
		ObjectURI:  objectURI,
		Visibility: store.VisibilityPublic,
		Content:    content,
		Sensitive:  summary != "",
		Summary:    summary,
		URL:        objectURI,
	}, PostStateNew, true)
}

// PostByObjectURI returns the post with the given canonical URI. When fetch
// is set and the post is unknown, the remote object is fetched, its author
// resolved, and the post stored already settled (it is not ours to fan out).
func (s *Service) PostByObjectURI(ctx context.Context, objectURI string, fetch bool) (*store.Post, error) {
	post, err := s.store.PostByObjectURI(ctx, objectURI)
	if err != nil {
		return nil, err
	}
	if post != nil || !fetch {
		return post, nil
	}
	if s.fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "activities", "fetch_post", "no fetcher configured", nil)
	}

	doc, err := s.fetcher.Fetch(ctx, objectURI)
	if err != nil {
		return nil, err
	}
	attributedTo, _ := doc["attributedTo"].(string)
	if attributedTo == "" {
		return nil, services.Wrap(services.ErrValidation, "activities", "fetch_post", fmt.Sprintf("object %s has no attributedTo", objectURI), nil)
	}
	author, err := s.identities.ResolveOrCreate(ctx, attributedTo)
	if err != nil {
		return nil, err
	}
	return s.createRemotePost(ctx, author, doc)
}

func (s *Service) handleNewPost(ctx context.Context, id int64) (string, error) {
	post, err := s.store.PostByID(ctx, id)
	if err != nil {
		return "", err
	}
	if post == nil {
		return "", services.Wrap(services.ErrNotFound, "activities", "fan_out", fmt.Sprintf("post %d vanished", id), nil)
	}
	author := post.Author

	follows, err := s.store.InboundFollows(ctx, author.ID)
	if err != nil {
		return "", err
	}

	recipients := 0
	for _, follow := range follows {
		// Fan out only where this server owns a side of the edge.
		if !follow.SourceLocal && !follow.TargetLocal {
			continue
		}
		created, err := s.store.CreateFanOut(ctx, follow.SourceID, store.FanOutPost, post.ID, FanOutStateQueued)
		if err != nil {
			return "", err
		}
		if created {
			recipients++
		}
	}
	if author.Local {
		created, err := s.store.CreateFanOut(ctx, author.ID, store.FanOutPost, post.ID, FanOutStateQueued)
		if err != nil {
			return "", err
		}
		if created {
			recipients++
		}
	}

	s.logger.Info("post fanned out",
		logging.Int64(logging.FieldEntityID, post.ID),
		logging.Int("recipients", recipients),
		logging.String(logging.FieldEventType, "fan_out"),
	)
	if author.Local && recipients > 0 {
		if err := s.notifier.Publish(ctx, notifications.EventPostPublished, notifications.Payload{
			"author":     author.Handle(),
			"recipients": recipients,
		}); err != nil {
			s.logger.Debug("post notification failed", logging.Error(err))
		}
	}
	return PostStateFannedOut, nil
}

func (s *Service) handleQueuedFanOut(ctx context.Context, id int64) (string, error) {
	fanOut, err := s.store.FanOutByID(ctx, id)
	if err != nil {
		return "", err
	}
	if fanOut == nil || fanOut.Subject == nil {
		return "", services.Wrap(services.ErrNotFound, "activities", "deliver", fmt.Sprintf("fan-out %d vanished", id), nil)
	}

	recipient := fanOut.Recipient
	if recipient.Local {
		if _, err := s.store.AddTimelineEvent(ctx, recipient.ID, string(fanOut.Type), fanOut.SubjectPostID); err != nil {
			return "", err
		}
		return FanOutStateDelivered, nil
	}

	if recipient.InboxURI == "" {
		s.logger.Warn("recipient has no inbox; abandoning delivery",
			logging.Int64(logging.FieldEntityID, fanOut.ID),
			logging.String("recipient", recipient.Handle()),
		)
		return FanOutStateFailed, nil
	}
	if s.deliverer == nil {
		return "", services.Wrap(services.ErrConfiguration, "activities", "deliver", "no deliverer configured", nil)
	}

	envelope := ToCreateAP(fanOut.Subject, fanOut.Subject.Author)
	if err := s.deliverer.Deliver(ctx, recipient.InboxURI, envelope); err != nil {
		return "", err
	}
	return FanOutStateDelivered, nil
}

func (s *Service) createRemotePost(ctx context.Context, author *store.Identity, object map[string]any) (*store.Post, error) {
	objectURI, _ := object["id"].(string)
	if objectURI == "" {
		return nil, services.Wrap(services.ErrValidation, "activities", "create_remote", "object has no id", nil)
	}
	content, _ := object["content"].(string)
	summary, _ := object["summary"].(string)
	sensitive, _ := object["as:sensitive"].(bool)
	url, _ := object["url"].(string)

	published := time.Now().UTC()
	if raw, ok := object["published"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			published = parsed
		}
	}

	// Remote posts arrive already distributed; they are never fanned out
	// from here.
	return s.store.CreatePost(ctx, &store.Post{
		AuthorID:   author.ID,
		ObjectURI:  objectURI,
		Visibility: store.VisibilityPublic,
		Content:    content,
		Sensitive:  sensitive || summary != "",
		Summary:    summary,
		URL:        url,
		Published:  published,
	}, PostStateFannedOut, false)
}
