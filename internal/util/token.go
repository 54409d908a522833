package util

import (
	"errors"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/raids-lab/staffdesk/pkg/config"
)

type (
	JWTClaims struct {
		UserID   uint   `json:"ui"`
		Username string `json:"un"`
		jwt.RegisteredClaims
	}
	JWTMessage struct {
		UserID   uint   `json:"userID"`   // User ID
		Username string `json:"username"` // Username
	}
)

// TokenManager verifies the access tokens issued by the administration
// service. Both sides share the HS256 secret.
type TokenManager struct {
	secretKey      string
	accessTokenTTL int
}

var (
	once     sync.Once
	tokenMgr *TokenManager
)

func GetTokenMgr() *TokenManager {
	once.Do(func() {
		tokenConfig := config.NewTokenConf()
		tokenMgr = NewTokenManager(tokenConfig.AccessTokenSecret, tokenConfig.AccessTokenExpiryHour)
	})
	return tokenMgr
}

func NewTokenManager(secretKey string, accessTokenTTL int) *TokenManager {
	return &TokenManager{
		secretKey:      secretKey,
		accessTokenTTL: accessTokenTTL,
	}
}

// CreateToken signs an access token for msg. Used by tooling and tests; in
// production tokens come from the administration service.
func (tm *TokenManager) CreateToken(msg *JWTMessage) (string, error) {
	expiresAt := time.Now().Add(time.Hour * time.Duration(tm.accessTokenTTL))

	claims := &JWTClaims{
		UserID:   msg.UserID,
		Username: msg.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secretKey))
}

func (tm *TokenManager) CheckToken(requestToken string) (JWTMessage, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(requestToken, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(tm.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return JWTMessage{}, err
	}
	if claims.UserID == 0 {
		return JWTMessage{}, errors.New("token carries no user")
	}
	return JWTMessage{
		UserID:   claims.UserID,
		Username: claims.Username,
	}, nil
}
