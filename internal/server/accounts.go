package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
)

type RegisterRequest struct {
	Username     string
	Email        string
	PasswordHash string
}

// Register creates a new account. Usernames and emails are unique.
func (cs *ChatServer) Register(ctx context.Context, req RegisterRequest) (*chat.User, error) {
	return call(ctx, cs, func() (*chat.User, error) { return cs.register(req) })
}

func (cs *ChatServer) register(req RegisterRequest) (*chat.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.PasswordHash == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidRequest)
	}

	user := chat.NewUser(chat.NewId(), username, email, req.PasswordHash)
	rec, err := user.Record()
	if err != nil {
		return nil, storageErr("encode user", err)
	}

	created, err := cs.db.CreateUser(rec)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("username or email already taken: %w", err)
		}
		return nil, storageErr("create user", err)
	}

	user.CreatedAt = created.CreatedAt
	cs.log.WithField("user_id", user.Id).Info("account created")
	return user, nil
}

// Authenticate loads the user behind a session. A granted role past its
// expiry is revoked and saved here.
func (cs *ChatServer) Authenticate(ctx context.Context, userId string) (*chat.User, error) {
	return call(ctx, cs, func() (*chat.User, error) { return cs.authenticate(userId) })
}

func (cs *ChatServer) authenticate(userId string) (*chat.User, error) {
	user, err := cs.loadUser(userId)
	if err != nil {
		return nil, err
	}
	if user.Banned {
		return nil, ErrBanned
	}

	if user.ExpireRole(cs.now()) {
		cs.log.WithField("user_id", userId).Info("role grant expired")
		if err := cs.saveUser(user); err != nil {
			return nil, err
		}
	}

	return user, nil
}

type AccountPatch struct {
	Username     *string
	PasswordHash *string
	DisplayName  *string
	Color        *string
	Pic          *string
}

// UpdateAccount changes the caller's own username, password or profile.
func (cs *ChatServer) UpdateAccount(ctx context.Context, userId string, patch AccountPatch) (*chat.User, error) {
	return call(ctx, cs, func() (*chat.User, error) { return cs.updateAccount(userId, patch) })
}

func (cs *ChatServer) updateAccount(userId string, patch AccountPatch) (*chat.User, error) {
	user, err := cs.loadUser(userId)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		name := strings.TrimSpace(*patch.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidRequest)
		}
		user.Username = name
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.DisplayName != nil {
		user.Profile.DisplayName = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.Color != nil {
		user.Profile.Color = *patch.Color
	}
	if patch.Pic != nil {
		user.Profile.Pic = *patch.Pic
	}

	if err := cs.saveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
