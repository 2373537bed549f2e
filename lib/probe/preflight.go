package probe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/device"
	"github.com/cyclopcam/connect/lib/registry"
	"net/http"
	"net/url"
)

// SessionUpdater stores a renewed session cookie.
// The registry implements it.
type SessionUpdater interface {
	SetField(id string, field string, value string) error
}

type keysResponse struct {
	PublicKey string `json:"publicKey"`
	Proof     string `json:"proof"`
}

// Preflight makes sure that the device at record.LanIP is the device that was
// registered under record.ID and that it accepts our session cookie.
// An expired session is renewed with the bearer token and the new cookie is
// written through the updater. Nothing is written unless renewal succeeds.
func (p *Prober) Preflight(ctx context.Context, record registry.Record, verifier *device.Verifier, updater SessionUpdater) error {
	if err := p.verifyIdentity(ctx, record, verifier); err != nil {
		return err
	}
	err := p.checkSession(ctx, record)
	if err == nil {
		return nil
	}
	var sessionErr *SessionError
	if !errors.As(err, &sessionErr) {
		return err
	}
	log.Infof("Session of %v rejected (%v), renewing", abbrev(record.ID), sessionErr.Status)
	session, err := p.login(ctx, record)
	if err != nil {
		return err
	}
	if err := updater.SetField(record.ID, "sessionCookie", session); err != nil {
		return fmt.Errorf("failed to store renewed session: %w", err)
	}
	log.Infof("Renewed session of %v", abbrev(record.ID))
	return nil
}

func (p *Prober) verifyIdentity(ctx context.Context, record registry.Record, verifier *device.Verifier) error {
	pinned, err := device.ParseIdentity(record.ID)
	if err != nil {
		return &IdentityError{Address: record.LanIP, Reason: "stored public key is invalid"}
	}
	challenge, err := verifier.CreateChallenge()
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	query := url.Values{}
	query.Set("publicKey", verifier.OwnPublicKey().String())
	query.Set("challenge", base64.StdEncoding.EncodeToString(challenge))

	ctx, cancel := context.WithTimeout(ctx, p.config.PreflightTimeout)
	defer cancel()
	resp, err := p.do(ctx, http.MethodGet, p.Origin(record.LanIP)+"/api/keys?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &IdentityError{Address: record.LanIP, Reason: resp.BodyOrStatus()}
	}

	var keys keysResponse
	if err := json.Unmarshal(resp.Body, &keys); err != nil {
		return &IdentityError{Address: record.LanIP, Reason: "malformed keys response"}
	}
	if keys.PublicKey != record.ID {
		return &IdentityError{Address: record.LanIP, Reason: "device reports a different public key"}
	}
	proof, err := base64.StdEncoding.DecodeString(keys.Proof)
	if err != nil {
		return &IdentityError{Address: record.LanIP, Reason: "malformed proof"}
	}
	if !verifier.Verify(pinned, challenge, proof) {
		return &IdentityError{Address: record.LanIP, Reason: "proof does not match"}
	}
	log.Debugf("Verified %v at %v", abbrev(record.ID), record.LanIP)
	return nil
}

func (p *Prober) checkSession(ctx context.Context, record registry.Record) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.PreflightTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("X-Session-Cookie", record.SessionCookie)
	resp, err := p.do(ctx, http.MethodGet, p.Origin(record.LanIP)+"/api/auth/whoami", header)
	if err != nil {
		return err
	}
	switch resp.Status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &SessionError{Status: resp.Status}
	}
	return fmt.Errorf("whoami: %v", resp.BodyOrStatus())
}

func (p *Prober) login(ctx context.Context, record registry.Record) (session string, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.PreflightTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+record.BearerToken)
	resp, err := p.do(ctx, http.MethodPost, p.Origin(record.LanIP)+"/api/auth/login", header)
	if err != nil {
		return
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		err = &CredentialError{Status: resp.Status, Body: resp.BodyOrStatus()}
		return
	default:
		err = fmt.Errorf("login: %v", resp.BodyOrStatus())
		return
	}
	setCookie := resp.Header.Get("Set-Cookie")
	if setCookie == "" {
		err = errors.New("login response has no Set-Cookie header")
		return
	}
	session = ExtractSession(setCookie)
	if session == "" {
		err = fmt.Errorf("no session cookie in %q", setCookie)
	}
	return
}
