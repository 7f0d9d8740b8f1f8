package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/creditmarket/pkg/market"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	callerContextKey = "caller_account"
	bearerPrefix     = "Bearer "

	errorMissingBearerToken = "missing_bearer_token"
	errorInvalidToken       = "invalid_token"
	errorInvalidSubject     = "invalid_subject"
)

// bearerAuth validates an externally issued HS256 bearer token and stores the
// subject as the caller identity. Token issuance stays with the surrounding
// auth system; only signature and issuer are checked here.
func bearerAuth(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorMissingBearerToken})
			return
		}
		rawToken := strings.TrimPrefix(header, bearerPrefix)
		claims := jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return signingKey, nil
		}, jwt.WithIssuer(issuer))
		if err != nil || !parsed.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorInvalidToken})
			return
		}
		caller, err := market.NewAccountID(claims.Subject)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorInvalidSubject})
			return
		}
		ctx.Set(callerContextKey, caller)
		ctx.Next()
	}
}

func callerFrom(ctx *gin.Context) (market.AccountID, bool) {
	value, exists := ctx.Get(callerContextKey)
	if !exists {
		return market.AccountID{}, false
	}
	caller, ok := value.(market.AccountID)
	return caller, ok
}
