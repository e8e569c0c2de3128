package session

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/paraf/pkg"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestSession(t *testing.T) {
	t.Run("boş oturum auth hatası döner", func(t *testing.T) {
		s := New()
		if _, err := s.ActorID(); !errors.Is(err, pkg.ErrAuthRequired) {
			t.Fatalf("err = %v, want ErrAuthRequired", err)
		}
	})

	t.Run("token'dan aktör çıkarılır", func(t *testing.T) {
		s := New()
		if err := s.SetToken(signedToken(t, jwt.MapClaims{"sub": "alice"})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		actorID, err := s.ActorID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if actorID != "alice" {
			t.Fatalf("actorID = %q, want alice", actorID)
		}
	})

	t.Run("bozuk token reddedilir", func(t *testing.T) {
		s := New()
		if err := s.SetToken("bu-bir-jwt-degil"); !errors.Is(err, pkg.ErrAuthRequired) {
			t.Fatalf("err = %v, want ErrAuthRequired", err)
		}
	})

	t.Run("subject'siz token reddedilir", func(t *testing.T) {
		s := New()
		if err := s.SetToken(signedToken(t, jwt.MapClaims{"aud": "paraf"})); !errors.Is(err, pkg.ErrAuthRequired) {
			t.Fatalf("err = %v, want ErrAuthRequired", err)
		}
	})

	t.Run("clear oturumu düşürür", func(t *testing.T) {
		s := New()
		if err := s.SetToken(signedToken(t, jwt.MapClaims{"sub": "alice"})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s.Clear()
		if _, err := s.ActorID(); !errors.Is(err, pkg.ErrAuthRequired) {
			t.Fatalf("err = %v, want ErrAuthRequired after clear", err)
		}
	})
}
