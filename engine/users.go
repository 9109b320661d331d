package engine

import (
	"context"
	"fmt"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/store"
)

// CreateUser inserts a user record. The password arrives already hashed;
// account provisioning beyond this lives outside the core.
func (s *Server) CreateUser(ctx context.Context, username, passwordHash, authMod, moodleID string) (grader.UUID, error) {
	if username == "" {
		return grader.NilUUID, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("username must not be empty")}
	}
	if _, _, err := s.FindUserByUsername(ctx, username); err == nil {
		return grader.NilUUID, grader.Error{Code: grader.Duplicate, UserData: username,
			Err: fmt.Errorf("username %q is taken", username)}
	}
	id := grader.NewUUID()
	data := map[string]string{
		FieldUsername: username,
		FieldPassword: passwordHash,
		FieldToken:    grader.NewUUID().String(),
		FieldAuthMod:  authMod,
		FieldMoodleID: moodleID,
	}
	data[store.FieldOwner] = id.String()
	if err := s.client.Hash(KindUser, id, UserSchema).Create(ctx, data); err != nil {
		return grader.NilUUID, err
	}
	return id, nil
}

// FindUserByUsername scans the user kind for a matching username.
func (s *Server) FindUserByUsername(ctx context.Context, username string) (grader.UUID, map[string]string, error) {
	return s.findUser(ctx, FieldUsername, username)
}

// FindUserByToken scans the user kind for a matching API token.
func (s *Server) FindUserByToken(ctx context.Context, token string) (grader.UUID, map[string]string, error) {
	return s.findUser(ctx, FieldToken, token)
}

func (s *Server) findUser(ctx context.Context, field, value string) (grader.UUID, map[string]string, error) {
	if value == "" {
		return grader.NilUUID, nil, grader.Error{Code: grader.ObjectDNE,
			Err: fmt.Errorf("no user with empty %s", field)}
	}
	ids, err := s.client.ListKind(ctx, KindUser)
	if err != nil {
		return grader.NilUUID, nil, err
	}
	for _, raw := range ids {
		id, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		u, err := s.client.Hash(KindUser, id, UserSchema).Get(ctx)
		if err != nil {
			continue
		}
		if u[field] == value {
			return id, u, nil
		}
	}
	return grader.NilUUID, nil, grader.Error{Code: grader.ObjectDNE, UserData: value,
		Err: fmt.Errorf("no user with %s %q", field, value)}
}
