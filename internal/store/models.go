package store

import (
	"fmt"
	"time"
)

// Kind identifies a schedulable entity table.
type Kind string

const (
	KindIdentity Kind = "identity"
	KindPost     Kind = "post"
	KindFanOut   Kind = "fan_out"
)

// kindTables maps each schedulable kind to its backing table. Adding a kind
// here requires a matching migration carrying the scheduling columns.
var kindTables = map[Kind]string{
	KindIdentity: "identities",
	KindPost:     "posts",
	KindFanOut:   "fan_outs",
}

// Kinds returns the registered schedulable entity kinds.
func Kinds() []Kind {
	return []Kind{KindIdentity, KindPost, KindFanOut}
}

func tableFor(kind Kind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return table, nil
}

// Scheduling carries the scheduling triple embedded in every schedulable row.
type Scheduling struct {
	State            string
	StateReady       bool
	StateLockedUntil *time.Time
	StateChanged     time.Time
	Attempts         int
	LastError        string
}

// SchedulingEntry is one row of the scheduling read model surfaced over the
// API and CLI.
type SchedulingEntry struct {
	ID   int64
	Kind Kind
	Scheduling
}

// ScheduledRow is the minimal projection the runner needs to claim and
// dispatch an entity.
type ScheduledRow struct {
	ID       int64
	State    string
	Attempts int
}

// Visibility controls who should be able to see a post.
type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityUnlisted
	VisibilityFollowers
	VisibilityMentioned
)

// FanOutType classifies what a fan-out delivers.
type FanOutType string

const (
	FanOutPost  FanOutType = "post"
	FanOutLike  FanOutType = "like"
	FanOutBoost FanOutType = "boost"
)

// Identity is a federated actor, local or remote.
type Identity struct {
	ID        int64
	Username  string
	Domain    string
	ActorURI  string
	InboxURI  string
	PublicURL string
	Local     bool
	CreatedAt time.Time
	UpdatedAt time.Time

	Scheduling
}

// Handle returns the user@domain form of the identity.
func (i *Identity) Handle() string {
	return i.Username + "@" + i.Domain
}

// Follow records that source follows target.
type Follow struct {
	ID        int64
	SourceID  int64
	TargetID  int64
	CreatedAt time.Time
}

// InboundFollow is a follow targeting some identity, joined with the
// locality of both sides for fan-out decisions.
type InboundFollow struct {
	SourceID    int64
	SourceLocal bool
	TargetLocal bool
}

// Post is a post (status, note) that is either local or remote.
type Post struct {
	ID         int64
	AuthorID   int64
	Local      bool
	ObjectURI  string
	Visibility Visibility
	Content    string
	Sensitive  bool
	Summary    string
	URL        string
	InReplyTo  string
	Published  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Scheduling

	// Author is populated by reads that join the identities table.
	Author *Identity
}

// FanOut is one pending delivery of a subject to one recipient.
type FanOut struct {
	ID            int64
	IdentityID    int64
	Type          FanOutType
	SubjectPostID int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Scheduling

	// Recipient and Subject are populated by reads that join their tables.
	Recipient *Identity
	Subject   *Post
}

// TimelineEvent is a post surfaced to a local identity's timeline.
type TimelineEvent struct {
	ID            int64
	IdentityID    int64
	Type          string
	SubjectPostID int64
	CreatedAt     time.Time
}

// HealthSummary aggregates entity counts per kind for diagnostics.
type HealthSummary struct {
	Kind     Kind
	Total    int
	Ready    int
	Locked   int
	Terminal int
	Errored  int
}
