package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/observability"
)

// PermissionResolver computes a user's effective permissions and token version
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (*AuthContext, error)
}

// SubscriptionStarter puts a freshly created organization on its first plan,
// inside the registration transaction.
type SubscriptionStarter interface {
	StartInitialSubscription(ctx context.Context, tx *sql.Tx, orgID, ownerID int64) error
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	OrganizationName string `json:"organizationName" validate:"required,max=255"`
	Name             string `json:"name" validate:"required,max=255"`
	Email            string `json:"email" validate:"required,email,max=255"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Service implements registration, login and logout
type Service struct {
	db       *sql.DB
	store    *Store
	hasher   *PasswordHasher
	issuer   *SessionIssuer
	resolver PermissionResolver
	starter  SubscriptionStarter
	revoked  RevocationList
	audit    audit.Logger
	metrics  *observability.Metrics
}

// NewService wires the authentication service
func NewService(db *sql.DB, hasher *PasswordHasher, issuer *SessionIssuer, resolver PermissionResolver, starter SubscriptionStarter, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Service{
		db:       db,
		store:    NewStore(db),
		hasher:   hasher,
		issuer:   issuer,
		resolver: resolver,
		starter:  starter,
		revoked:  NewMemoryRevocationList(),
		audit:    auditLogger,
		metrics:  metrics,
	}
}

// WithRevocationList replaces the in-process revocation list. The session
// middleware must consult the same list.
func (s *Service) WithRevocationList(list RevocationList) *Service {
	s.revoked = list
	return s
}

// RevocationList returns the list logout writes to
func (s *Service) RevocationList() RevocationList {
	return s.revoked
}

// Store exposes the user store
func (s *Service) Store() *Store {
	return s.store
}

// Register creates an organization with its owner and first subscription,
// then logs the owner in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	owner := &User{
		Email:        normalizeEmail(req.Email),
		Name:         req.Name,
		PasswordHash: hash,
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		taken, err := emailExists(ctx, tx, owner.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
		if err := createOrganizationWithOwner(ctx, tx, req.OrganizationName, owner); err != nil {
			return err
		}
		if s.starter != nil {
			if err := s.starter.StartInitialSubscription(ctx, tx, owner.OrganizationID, owner.ID); err != nil {
				return fmt.Errorf("failed to start subscription: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeRegister, audit.ResourceOrganization, owner.OrganizationID).
		ByUser(owner.ID, owner.OrganizationID))

	return s.issue(ctx, owner.ID)
}

// Login checks the password and issues a session carrying the user's current permissions
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	log := observability.FromContext(ctx)

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, ErrUserNotFound) {
		s.loginFailed(ctx, 0, 0, "unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, req.Password)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("stored password hash is unusable")
	}
	if !ok {
		s.loginFailed(ctx, user.ID, user.OrganizationID, "wrong password")
		return nil, ErrInvalidCredentials
	}

	session, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeLogin, audit.ResourceUser, user.ID).
		ByUser(user.ID, user.OrganizationID))
	return session, nil
}

// LoginWithIdentity issues a session for the account whose email an identity
// provider has verified. It never creates accounts.
func (s *Service) LoginWithIdentity(ctx context.Context, identity *ExternalIdentity) (*Session, error) {
	if identity == nil || identity.Email == "" {
		return nil, ErrExternalLogin
	}
	if !identity.EmailVerified {
		s.loginFailed(ctx, 0, 0, "identity provider email not verified")
		return nil, ErrUnverifiedEmail
	}

	user, err := s.store.GetUserByEmail(ctx, identity.Email)
	if errors.Is(err, ErrUserNotFound) {
		s.loginFailed(ctx, 0, 0, "no account for identity provider email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	session, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeLogin, audit.ResourceUser, user.ID).
		ByUser(user.ID, user.OrganizationID).
		With("method", "oidc").
		With("subject", identity.Subject))
	return session, nil
}

func (s *Service) loginFailed(ctx context.Context, userID, orgID int64, reason string) {
	s.metrics.LoginsTotal.WithLabelValues("failure").Inc()
	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeLoginFailed, audit.ResourceUser, userID).
		ByUser(userID, orgID).
		WithStatus(audit.StatusFailure).
		WithMessage(reason))
}

// Logout ends the presented session only. Other sessions of the user and
// the user's token version are left alone.
func (s *Service) Logout(ctx context.Context, ac *AuthContext) error {
	if ac == nil || ac.TokenID == "" {
		return ErrInvalidToken
	}

	expiresAt := ac.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.issuer.now().Add(s.issuer.ttl)
	}
	if err := s.revoked.Revoke(ctx, ac.TokenID, expiresAt); err != nil {
		return err
	}

	observability.FromContext(ctx).WithFields(logrus.Fields{
		"user_id":  ac.UserID,
		"token_id": ac.TokenID,
	}).Info("session revoked on logout")
	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeLogout, audit.ResourceUser, ac.UserID).
		ByUser(ac.UserID, ac.OrganizationID))
	return nil
}

func (s *Service) issue(ctx context.Context, userID int64) (*Session, error) {
	ac, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	if ac == nil {
		return nil, ErrInvalidCredentials
	}
	return s.issuer.Issue(ac)
}
