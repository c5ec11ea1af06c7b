package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/oauth2"
)

type memSecrets map[string]string

func (m memSecrets) Get(service string) (string, error) {
	v, ok := m[service]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m memSecrets) Put(service, secret string) error {
	m[service] = secret
	return nil
}

func TestConfigRedirect(t *testing.T) {
	cases := []struct {
		redirect string
		want     string
	}{
		{"http://localhost", "http://localhost:6789"},
		{"http://localhost:8080/cb", "http://localhost:6789/cb"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
	}
	for _, c := range cases {
		secrets := `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["` + c.redirect + `"]}}`
		config, err := Config([]byte(secrets), CalendarScopes)
		if err != nil {
			t.Fatalf("Config failed: %v", err)
		}
		if config.RedirectURL != c.want {
			t.Errorf("Expected redirect %s for %s, got %s", c.want, c.redirect, config.RedirectURL)
		}
	}
}

type seqSource struct{ tokens []*oauth2.Token }

func (s *seqSource) Token() (*oauth2.Token, error) {
	tok := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return tok, nil
}

func TestRefreshedTokenIsSaved(t *testing.T) {
	secrets := memSecrets{}
	first := &oauth2.Token{AccessToken: "a", RefreshToken: "r"}
	if err := SaveToken(secrets, "google:cal", first); err != nil {
		t.Fatal(err)
	}
	src := &persistingSource{
		base:    &seqSource{tokens: []*oauth2.Token{first, {AccessToken: "b", RefreshToken: "r"}}},
		secrets: secrets,
		service: "google:cal",
		logger:  defaultLogger,
		last:    first,
	}
	src.Token()
	if tok, _ := Token(secrets, "google:cal"); tok.AccessToken != "a" {
		t.Errorf("Expected unchanged token, got %q", tok.AccessToken)
	}
	src.Token()
	if tok, _ := Token(secrets, "google:cal"); tok.AccessToken != "b" {
		t.Errorf("Expected refreshed token saved, got %q", tok.AccessToken)
	}
}

func TestTokenSourceNeedsLogin(t *testing.T) {
	config := &oauth2.Config{}
	if _, err := TokenSource(context.Background(), config, memSecrets{}, "google:cal"); err == nil {
		t.Error("Expected an error without a stored token")
	}
}
