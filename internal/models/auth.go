package models

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims is the payload of operator access tokens.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// TokenRequest asks for an operator token.
type TokenRequest struct {
	Operator string `json:"operator" validate:"required,max=64"`
}

// TokenResponse carries a signed operator token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
