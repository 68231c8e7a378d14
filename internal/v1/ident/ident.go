// Package ident generates the identifiers the broker hands out: room IDs and
// short opaque hex IDs. Both draw from crypto/rand.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const roomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// rejectionBound is the largest multiple of len(roomAlphabet) that fits in a
// byte. Bytes at or above it are discarded so every alphabet character is
// equally likely (floor(256/62)*62 = 248).
const rejectionBound = byte((256 / len(roomAlphabet)) * len(roomAlphabet))

// RoomID returns a random alphanumeric identifier of the given length,
// uniform over the 62-character alphabet.
func RoomID(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("ident: room ID length must be positive, got %d", length)
	}

	id := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(id) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("ident: read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= rejectionBound {
				continue
			}
			id = append(id, roomAlphabet[int(b)%len(roomAlphabet)])
			if len(id) == length {
				break
			}
		}
	}
	return string(id), nil
}

// ShortID returns a random lowercase hex string of 2*nBytes characters.
func ShortID(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("ident: short ID byte count must be positive, got %d", nBytes)
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ident: read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// MustShortID is ShortID for call sites where a CSPRNG failure is fatal
// anyway (guest names, message IDs). It panics on error.
func MustShortID(nBytes int) string {
	id, err := ShortID(nBytes)
	if err != nil {
		panic(err)
	}
	return id
}
