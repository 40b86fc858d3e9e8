package main

import (
	"errors"
	"fmt"
)

// Kind classifies a BanchoError so callers can decide how to propagate it
// without string-matching error text.
type Kind int

const (
	KindUnauthenticated Kind = iota
	KindInvalidCredentials
	KindAccountBanned
	KindAlreadyLoggedIn
	KindMalformedFrame
	KindUnknownPacket
	KindDenied
	KindSilenced
	KindBlocking
	KindLobbyFull
	KindNotInMatch
	KindSlotOccupied
	KindInvalidSlot
	KindNoSuchUser
	KindNoSuchChannel
	KindNoSuchMatch
	KindInternalStoreError
	KindAlreadyMember
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountBanned:
		return "account_banned"
	case KindAlreadyLoggedIn:
		return "already_logged_in"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindUnknownPacket:
		return "unknown_packet"
	case KindDenied:
		return "denied"
	case KindSilenced:
		return "silenced"
	case KindBlocking:
		return "blocking"
	case KindLobbyFull:
		return "lobby_full"
	case KindNotInMatch:
		return "not_in_match"
	case KindSlotOccupied:
		return "slot_occupied"
	case KindInvalidSlot:
		return "invalid_slot"
	case KindNoSuchUser:
		return "no_such_user"
	case KindNoSuchChannel:
		return "no_such_channel"
	case KindNoSuchMatch:
		return "no_such_match"
	case KindInternalStoreError:
		return "internal_store_error"
	case KindAlreadyMember:
		return "already_member"
	default:
		return "unknown"
	}
}

// BanchoError wraps an underlying cause with a Kind the router and handlers
// can branch on. Err is built with fmt.Errorf, so when the message format
// uses %w the original cause survives errors.Unwrap/errors.Is.
type BanchoError struct {
	Kind Kind
	Err  error
}

func (e *BanchoError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *BanchoError) Unwrap() error { return e.Err }

// newErr builds a *BanchoError whose Err is fmt.Errorf(format, args...). An
// empty format leaves Err nil, so the error collapses to a bare Kind; a
// format containing %w keeps the wrapped error's chain.
func newErr(kind Kind, format string, args ...any) *BanchoError {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &BanchoError{Kind: kind, Err: err}
}

// kindOf extracts the Kind from err if it is (or wraps) a *BanchoError,
// reporting ok=false otherwise.
func kindOf(err error) (Kind, bool) {
	var be *BanchoError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}

// abortsFrame reports whether an error of this kind should only abort the
// current frame, letting the rest of the request's frame stream continue,
// per spec §7's propagation rules.
func abortsFrame(kind Kind) bool {
	return kind == KindMalformedFrame || kind == KindUnknownPacket
}
