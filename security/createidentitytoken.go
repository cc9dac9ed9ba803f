package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"

	issuer = "workforce"
)

// Identity is carried in the bearer token. Employee tokens are bound to one
// company and employee number; admin tokens may omit both.
type Identity struct {
	CompanyCode string `json:"company,omitempty"`
	EmployeeNo  string `json:"employee_no,omitempty"`
	Role        string `json:"role"`
	DeviceID    string `json:"sid,omitempty"`
}

type IdentityClaims struct {
	Identity
	jwt.RegisteredClaims
}

func DecodeSecret(base64Secret string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return secret, nil
}

func CreateIdentityToken(identity Identity, base64Secret string, expiresIn time.Duration) (string, error) {
	secretBytes, err := DecodeSecret(base64Secret)
	if err != nil {
		return "", err
	}
	if identity.Role == "" {
		identity.Role = RoleEmployee
	}
	now := time.Now()
	claims := IdentityClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.EmployeeNo,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	// Use HS256 signing method (symmetric key)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(secretBytes)
}

// ParseIdentityToken validates signature and expiry and returns the claims.
func ParseIdentityToken(tokenStr string, secret []byte) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// CanAccess reports whether the identity may act for employeeNo of companyCode.
// An empty employeeNo asks for company-wide access.
func (i Identity) CanAccess(companyCode, employeeNo string) bool {
	if i.Role == RoleAdmin {
		return i.CompanyCode == "" || strings.EqualFold(i.CompanyCode, companyCode)
	}
	if i.CompanyCode == "" || !strings.EqualFold(i.CompanyCode, companyCode) {
		return false
	}
	return employeeNo != "" && (i.EmployeeNo == "" || i.EmployeeNo == employeeNo)
}
