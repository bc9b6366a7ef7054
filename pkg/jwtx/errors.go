package jwtx

import "errors"

var (
	ErrIssuer      = errors.New("jwtx: unexpected issuer")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrUnknownKID  = errors.New("jwtx: unknown key id")
)
