package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/cortap/cortap-rpt/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func signedToken(key *rsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "cortap-test"
	signed, err := token.SignedString(key)
	Expect(err).To(BeNil())
	return signed
}

func newKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())
	return key
}

func validClaims(extra jwt.MapClaims) jwt.MapClaims {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func serve(a auth.Authenticator, header string) (*httptest.ResponseRecorder, auth.User, bool) {
	var (
		user  auth.User
		found bool
	)
	h := a.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, found = auth.UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/rpt-1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, user, found
}

var _ = Describe("bearer authenticator", func() {
	var idpKey *rsa.PrivateKey

	BeforeEach(func() {
		idpKey = newKey()
	})

	Context("without a key set", func() {
		var a *auth.BearerAuthenticator

		BeforeEach(func() {
			var err error
			a, err = auth.NewBearerAuthenticator(context.TODO(), "")
			Expect(err).To(BeNil())
		})

		It("ignores claims and identifies by token digest", func() {
			token := signedToken(idpKey, validClaims(jwt.MapClaims{"email": "auditor@example.com"}))
			id, err := a.Identify(token)
			Expect(err).To(BeNil())
			Expect(id).To(HavePrefix("token:"))
			Expect(id).To(HaveLen(len("token:") + 16))
		})

		It("gives different identities to tokens claiming the same email", func() {
			owner, err := a.Identify(signedToken(idpKey, validClaims(jwt.MapClaims{"email": "victim@agency.gov"})))
			Expect(err).To(BeNil())
			forged, err := a.Identify(signedToken(newKey(), validClaims(jwt.MapClaims{"email": "victim@agency.gov"})))
			Expect(err).To(BeNil())
			Expect(forged).NotTo(Equal(owner))
		})

		It("hashes opaque tokens stably", func() {
			id, err := a.Identify("opaque-token")
			Expect(err).To(BeNil())
			again, _ := a.Identify("opaque-token")
			other, _ := a.Identify("other-token")
			Expect(again).To(Equal(id))
			Expect(other).NotTo(Equal(id))
		})
	})

	Context("with a key set", func() {
		var a *auth.BearerAuthenticator

		BeforeEach(func() {
			var err error
			a, err = auth.NewBearerAuthenticatorWithKeyFn(func(*jwt.Token) (any, error) {
				return &idpKey.PublicKey, nil
			})
			Expect(err).To(BeNil())
		})

		It("prefers the email claim", func() {
			id, err := a.Identify(signedToken(idpKey, validClaims(jwt.MapClaims{"email": "auditor@example.com", "sub": "42"})))
			Expect(err).To(BeNil())
			Expect(id).To(Equal("auditor@example.com"))
		})

		It("falls back to the subject", func() {
			id, err := a.Identify(signedToken(idpKey, validClaims(jwt.MapClaims{"sub": "42"})))
			Expect(err).To(BeNil())
			Expect(id).To(Equal("42"))
		})

		It("rejects a token signed by another key", func() {
			_, err := a.Identify(signedToken(newKey(), validClaims(jwt.MapClaims{"email": "victim@agency.gov"})))
			Expect(err).ToNot(BeNil())
		})

		It("rejects an expired token", func() {
			_, err := a.Identify(signedToken(idpKey, jwt.MapClaims{"email": "auditor@example.com", "exp": time.Now().Add(-time.Minute).Unix()}))
			Expect(err).ToNot(BeNil())
		})

		It("rejects an opaque token", func() {
			_, err := a.Identify("opaque-token")
			Expect(err).ToNot(BeNil())
		})

		It("answers 401 for a forged token", func() {
			rr, _, found := serve(a, "Bearer "+signedToken(newKey(), validClaims(jwt.MapClaims{"email": "victim@agency.gov"})))
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(found).To(BeFalse())
		})
	})

	Context("with a remote key set", func() {
		It("verifies tokens against the served JWKS", func() {
			raw, err := json.Marshal(map[string]any{"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "cortap-test",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(idpKey.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(idpKey.PublicKey.E)).Bytes()),
			}}})
			Expect(err).To(BeNil())

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(raw)
			}))
			defer ts.Close()

			ctx, cancel := context.WithCancel(context.TODO())
			defer cancel()
			a, err := auth.NewBearerAuthenticator(ctx, ts.URL)
			Expect(err).To(BeNil())

			id, err := a.Identify(signedToken(idpKey, validClaims(jwt.MapClaims{"email": "auditor@example.com"})))
			Expect(err).To(BeNil())
			Expect(id).To(Equal("auditor@example.com"))
		})
	})

	Context("middleware", func() {
		var a *auth.BearerAuthenticator

		BeforeEach(func() {
			var err error
			a, err = auth.NewBearerAuthenticatorWithKeyFn(func(*jwt.Token) (any, error) {
				return &idpKey.PublicKey, nil
			})
			Expect(err).To(BeNil())
		})

		It("rejects a request without a token", func() {
			rr, _, found := serve(a, "")
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(found).To(BeFalse())
		})

		It("rejects an empty bearer token", func() {
			rr, _, _ := serve(a, "Bearer   ")
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})

		It("puts the user and credential in the context", func() {
			token := signedToken(idpKey, validClaims(jwt.MapClaims{"email": "auditor@example.com"}))
			rr, user, found := serve(a, "Bearer "+token)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(found).To(BeTrue())
			Expect(user.Username).To(Equal("auditor@example.com"))
			Expect(user.Credential).To(Equal(token))
		})
	})
})

var _ = Describe("none authenticator", func() {
	It("admits every request as admin", func() {
		a, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		rr, user, found := serve(a, "Bearer abc")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(found).To(BeTrue())
		Expect(user.Username).To(Equal("admin"))
		Expect(user.Credential).To(Equal("abc"))
	})
})
