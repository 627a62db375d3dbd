// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxAddressLen = 3071

var (
	ErrAddressEmpty   = errors.New("address empty")
	ErrAddressTooLong = errors.New("address too long")
	ErrAddressNoHost  = errors.New("address has no domain part")
)

// Address is a full or bare XMPP-style identity: [local@]domain[/resource].
type Address string

// NewAddress validates raw and returns it as an Address.
func NewAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrAddressEmpty
	}
	if len(raw) > MaxAddressLen {
		return "", ErrAddressTooLong
	}
	a := Address(raw)
	if a.Domain() == "" {
		return "", ErrAddressNoHost
	}
	return a, nil
}

func (a Address) String() string { return string(a) }

// Bare strips the resource part.
func (a Address) Bare() Address {
	if i := strings.IndexByte(string(a), '/'); i >= 0 {
		return a[:i]
	}
	return a
}

// Domain returns the host part only.
func (a Address) Domain() string {
	s := string(a.Bare())
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func (a Address) Local() string {
	s := string(a.Bare())
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return ""
}

func (a Address) Resource() string {
	if i := strings.IndexByte(string(a), '/'); i >= 0 {
		return string(a[i+1:])
	}
	return ""
}

type (
	CallID    string
	SessionID string
)

func NewCallID() CallID { return CallID(uuid.NewString()) }

// NewSessionID returns a fresh signaling correlation id.
func NewSessionID() SessionID {
	return SessionID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
