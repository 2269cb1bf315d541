package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/medportal/portal/pkg/client"
	"github.com/medportal/portal/pkg/session"
)

var errNotSignedIn = errors.New("not signed in")

// restore loads the stored session for role. Hospital sessions are verified
// against the server first and dropped when the token is no longer accepted.
func restore[P any](ctx context.Context, a *app, role session.Role) (session.Session[P], error) {
	var opts []session.Option[P]
	if role == session.Hospital {
		opts = append(opts, session.WithVerifier[P](a.client("")))
	}
	auth, err := session.New[P](a.store(), role, opts...)
	if err != nil {
		return session.Session[P]{}, err
	}
	s, ok, err := auth.RestoreVerified(ctx)
	if err != nil {
		return session.Session[P]{}, err
	}
	if !ok {
		return session.Session[P]{}, fmt.Errorf("%w as %s, run: portalctl login %s", errNotSignedIn, role, role)
	}
	return s, nil
}

func save[P any](a *app, role session.Role, profile P, token string) (session.Session[P], error) {
	auth, err := session.New[P](a.store(), role)
	if err != nil {
		return session.Session[P]{}, err
	}
	return auth.Login(profile, token)
}

func signIn(ctx context.Context, a *app, role session.Role, email, password string) error {
	c := a.client("")
	var err error
	switch role {
	case session.Patient:
		var u client.User
		var tok string
		if u, tok, err = c.SignInPatient(ctx, email, password); err == nil {
			_, err = save(a, role, u, tok)
		}
	case session.Hospital:
		var h client.Hospital
		var tok string
		if h, tok, err = c.SignInHospital(ctx, email, password); err == nil {
			_, err = save(a, role, h, tok)
		}
	case session.Doctor:
		var d client.Doctor
		var tok string
		if d, tok, err = c.SignInDoctor(ctx, email, password); err == nil {
			_, err = save(a, role, d, tok)
		}
	case session.Lab:
		var l client.Lab
		var tok string
		if l, tok, err = c.SignInLab(ctx, email, password); err == nil {
			_, err = save(a, role, l, tok)
		}
	default:
		return fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
	}
	return err
}

// signOut revokes the token server-side when possible and always clears the
// local session. A token the server already refuses is not an error.
func signOut(ctx context.Context, a *app, role session.Role) (bool, error) {
	auth, err := session.New[json.RawMessage](a.store(), role)
	if err != nil {
		return false, err
	}
	s, ok, err := auth.Restore()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	var serverErr error
	if err := a.client(s.Token).Logout(ctx); err != nil && client.StatusOf(err) != http.StatusUnauthorized {
		serverErr = err
	}
	if err := auth.Logout(); err != nil {
		return true, err
	}
	return true, serverErr
}
