package utils

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	AthleteId string `json:"athlete_id"`
	jwt.StandardClaims
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// JWT issues and checks the session tokens feed subscribers present.
type JWT struct {
	Key []byte
	TTL time.Duration
}

func (j JWT) GenerateJWTForAthlete(athleteId int64) (*Token, error) {
	ttl := j.TTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	expTime := time.Now().Add(ttl)

	claims := &claims{
		AthleteId: strconv.FormatInt(athleteId, 10),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expTime.Unix(),
			Subject:   strconv.FormatInt(athleteId, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.Key)
	if err != nil {
		return nil, err
	}

	return &Token{Value: tokenString, ExpiresAt: expTime}, nil
}

func (j JWT) GetAthleteIdFromToken(tokenString string) (int64, error) {
	claims := &claims{}

	tkn, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.Key, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			slog.Error("invalid token signature")
		}
		return 0, ErrInvalidToken
	}

	if !tkn.Valid {
		return 0, ErrInvalidToken
	}

	athleteId, err := strconv.ParseInt(claims.AthleteId, 10, 64)
	if err != nil {
		slog.Error("cannot convert athleteId to int")
		return 0, ErrInvalidToken
	}
	return athleteId, nil
}
