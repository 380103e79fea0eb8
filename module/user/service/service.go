// Package service implements registration, login and token verification.
// Verification deliberately reports a single generic authentication error so
// callers cannot distinguish bad tokens from unknown accounts.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatwire/module/user/model"
	"chatwire/tools/errs"
	"chatwire/tools/security"
)

type Store interface {
	Insert(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]model.User, error)
	SearchByName(ctx context.Context, query, excludeID string) ([]model.User, error)
}

type Service struct {
	store Store
	jwt   security.Options
}

func New(store Store, jwt security.Options) *Service {
	return &Service{store: store, jwt: jwt}
}

type RegisterParams struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	MobileNo string `json:"mobileno"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, in RegisterParams) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, errs.ErrValidation.WithDetail("all fields are required")
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, errs.WrapMsg(err, "hash password")
	}
	u := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		MobileNo:     strings.TrimSpace(in.MobileNo),
		PasswordHash: hash,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

type LoginResult struct {
	Token    string
	ExpireAt time.Time
	User     *model.User
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errs.ErrValidation.WithDetail("email and password are required")
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// same answer for unknown email and wrong password
			return nil, errs.ErrAuthentication
		}
		return nil, err
	}
	if !security.ComparePassword(u.PasswordHash, password) {
		return nil, errs.ErrAuthentication
	}
	token, exp, err := security.Generate(s.jwt, u.ID)
	if err != nil {
		return nil, errs.WrapMsg(err, "sign token")
	}
	return &LoginResult{Token: token, ExpireAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to its account. Used once per REST
// request by the middleware and once per websocket handshake by the gateway.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.ErrAuthentication
	}
	userID, err := security.Verify(s.jwt, token)
	if err != nil {
		return nil, errs.ErrAuthentication
	}
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, errs.ErrAuthentication
	}
	return u, nil
}

func (s *Service) Info(ctx context.Context, userID string) (*model.User, error) {
	return s.store.FindByID(ctx, userID)
}

// Search returns public profiles matching a partial name, excluding the
// caller. Queries shorter than two runes return nothing, mirroring the
// client's own threshold.
func (s *Service) Search(ctx context.Context, callerID, query string) ([]model.PublicProfile, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []model.PublicProfile{}, nil
	}
	users, err := s.store.SearchByName(ctx, query, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]model.PublicProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}
