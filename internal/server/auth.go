package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/ilnaes/linepad/internal/common"
)

var (
	ErrInvalidClientID = errors.New("client id must be letters and digits and not " + common.ServerID)
	ErrInvalidToken    = errors.New("invalid token")
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type Credentials struct {
	Username string `json:"username"`
}

type Claims struct {
	Uid string `json:"uid"`
	jwt.StandardClaims
}

func validClientID(id string) error {
	if id == common.ServerID || !clientIDPattern.MatchString(id) {
		return ErrInvalidClientID
	}
	return nil
}

// userid -> token, err
func (s *Server) signJWT(claim Claims) (string, error) {
	claim.ExpiresAt = time.Now().Add(time.Hour * 24 * 30).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claim)
	return token.SignedString(s.secret)
}

// token -> userid, ok
func (s *Server) parseJWT(token string) (string, bool) {
	parsedToken, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", false
	}

	if claim, ok := parsedToken.Claims.(*Claims); ok && parsedToken.Valid {
		return claim.Uid, true
	}
	return "", false
}

// identify works out who is connecting. With a secret configured the id
// comes from a bearer token (header or ?token=), otherwise from ?client=.
func (s *Server) identify(r *http.Request) (string, error) {
	if len(s.secret) == 0 {
		id := r.URL.Query().Get("client")
		return id, validClientID(id)
	}

	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		extracted := strings.Split(h, "Bearer ")
		if len(extracted) != 2 {
			return "", ErrInvalidToken
		}
		token = extracted[1]
	}

	id, ok := s.parseJWT(token)
	if !ok {
		return "", ErrInvalidToken
	}
	return id, validClientID(id)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if len(s.secret) == 0 {
		http.Error(w, "Authentication disabled", http.StatusNotFound)
		return
	}

	reqBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "Bad format", http.StatusBadRequest)
		return
	}
	var user Credentials
	if json.Unmarshal(reqBody, &user) != nil {
		http.Error(w, "Bad format", http.StatusBadRequest)
		return
	}
	if err := validClientID(user.Username); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	token, err := s.signJWT(Claims{Uid: user.Username})
	if err != nil {
		http.Error(w, "Cannot sign token", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, token)
}
