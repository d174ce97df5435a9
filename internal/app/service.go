package app

import (
	"context"
	"time"

	"tolma/api/internal/archive"
	"tolma/api/internal/auth"
	"tolma/api/internal/authpw"
	"tolma/api/internal/config"
	"tolma/api/internal/export"
	"tolma/api/internal/reputation"
	"tolma/api/internal/search"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// storeTx is one open transaction over the data store. Every mutation of a
// segment happens under its row lock inside one of these.
type storeTx interface {
	Commit() error
	Rollback() error

	GetWork(context.Context, string) (store.Work, error)
	GetSegmentForUpdate(context.Context, string) (store.Segment, error)
	UpdateSegmentTranslation(context.Context, store.Segment) error
	UpdateSegmentProgress(context.Context, string, int) error
	SetSegmentLock(context.Context, string, string) error
	ClearSegmentLock(context.Context, string) error

	InsertHistoryRecord(ctx context.Context, segmentID, content, authorID, reason string, restoredFrom *int) (store.HistoryRecord, error)
	OverwriteHistoryRecord(ctx context.Context, segmentID string, relativeID int, content, reason string) error
	DeleteLatestHistoryRecord(ctx context.Context, segmentID string, relativeID int) error
	GetHistoryRecord(ctx context.Context, segmentID string, relativeID int) (store.HistoryRecord, error)
	LatestHistoryRecord(context.Context, string) (store.HistoryRecord, error)

	UserVoteSum(ctx context.Context, segmentID string, relativeID int, userID string) (int, error)
	InsertVote(context.Context, store.Vote) error
	AccumulatedVotes(ctx context.Context, segmentID string, relativeID int) (store.RoleTotals, error)
	HasVotes(ctx context.Context, segmentID string, relativeID int) (bool, error)
	NetVotes(ctx context.Context, segmentID string, relativeID int) ([]store.Vote, error)
	CreateVoteComment(context.Context, store.VoteComment) error

	GetReputation(ctx context.Context, userID, language string) (store.Reputation, error)
	AddReputation(ctx context.Context, userID, language string, delta int64) (int64, error)

	InsertDraft(context.Context, store.Draft) error
	HasDrafts(ctx context.Context, userID, segmentID string) (bool, error)
	RefreshChapterStats(context.Context, string) (store.StateCounts, error)
	RefreshWorkStats(context.Context, string) (store.StateCounts, error)
}

type dataStore interface {
	Begin(context.Context) (storeTx, error)

	GetUserByID(context.Context, string) (store.User, error)
	GetReputation(ctx context.Context, userID, language string) (store.Reputation, error)
	ListReputations(context.Context, string) ([]store.Reputation, error)

	CreateWork(context.Context, store.Work) error
	GetWork(context.Context, string) (store.Work, error)
	GetTranslationOf(ctx context.Context, originalID, language string) (store.Work, error)
	ListWorks(context.Context) ([]store.Work, error)
	UpdateWork(context.Context, store.Work) error
	DeleteWork(context.Context, string) error

	CreateChapter(context.Context, store.Chapter) error
	GetChapter(context.Context, string) (store.Chapter, error)
	ListChapters(context.Context, string) ([]store.Chapter, error)

	CreateSegment(context.Context, store.Segment) error
	GetSegment(context.Context, string) (store.Segment, error)
	ListSegments(context.Context, string) ([]store.Segment, error)

	ListHistory(context.Context, string) ([]store.HistoryRecord, error)
	CountHistory(context.Context, string) (int, error)
	ListVotes(ctx context.Context, segmentID string, relativeID int) ([]store.Vote, error)
	NetVotes(ctx context.Context, segmentID string, relativeID int) ([]store.Vote, error)
	AccumulatedVotes(ctx context.Context, segmentID string, relativeID int) (store.RoleTotals, error)
	ListVoteComments(context.Context, string) ([]store.VoteComment, error)

	InsertDraft(context.Context, store.Draft) error
	ListDrafts(ctx context.Context, userID, segmentID string) ([]store.Draft, error)
	DeleteDrafts(ctx context.Context, userID, segmentID string) error

	GetChapterStats(context.Context, string) (store.StateCounts, error)
	GetWorkStats(context.Context, string) (store.StateCounts, error)

	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	Ping(ctx context.Context) error
}

// refreshSessions is satisfied by both the Redis store and the Postgres
// fallback.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// sqlStore adapts *store.PostgresStore to the dataStore interface; the
// wrapper narrows Begin's concrete transaction type to storeTx.
type sqlStore struct {
	*store.PostgresStore
}

func (s sqlStore) Begin(ctx context.Context) (storeTx, error) {
	tx, err := s.PostgresStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessions
	authpw   *authpw.Service
	search   *search.Service
	export   *export.Service
	archive  *archive.Store
	now      func() time.Time
}

func New(cfg config.Config, pg *store.PostgresStore) *Service {
	adapter := sqlStore{pg}
	return &Service{
		cfg:      cfg,
		store:    adapter,
		sessions: adapter,
		authpw:   authpw.NewService(adapter),
		export:   export.NewService(pg),
		now:      time.Now,
	}
}

// UseSessions swaps the refresh token backend (Redis when configured).
func (s *Service) UseSessions(sessions refreshSessions) {
	s.sessions = sessions
}

// UseSearch attaches the search facade.
func (s *Service) UseSearch(svc *search.Service) {
	s.search = svc
}

// UseArchive attaches the export artifact store.
func (s *Service) UseArchive(a *archive.Store) {
	s.archive = a
}

// AuthPasswordService exposes the email/password auth service to transport.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IssueSession creates access and refresh tokens for a signed-in user.
func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Redis only stores the user id; read the full row for the new claims.
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.IssueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Me returns the caller's profile with per-language reputation scores and
// the roles each score grants. A user can be a trustee for German and still
// be an apprentice translator for French.
func (s *Service) Me(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	reps, err := s.store.ListReputations(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	reputations := []map[string]any{}
	for _, rep := range reps {
		roles := []string{}
		for _, role := range reputation.RolesFor(rep.Score) {
			roles = append(roles, string(role))
		}
		capabilities := []string{}
		for _, c := range reputation.Capabilities {
			if reputation.Has(rep.Score, c) {
				capabilities = append(capabilities, string(c))
			}
		}
		reputations = append(reputations, map[string]any{
			"language":     rep.Language,
			"score":        rep.Score,
			"roles":        roles,
			"capabilities": capabilities,
		})
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"reputations": reputations,
	}, nil
}
