/*
Package randx provides functions for generating cryptographically secure random identifiers.

Persisted entities (messages, groups) get UUIDv4 identifiers; live socket
connections get short Base62 identifiers that only need to be unique for the
lifetime of the process.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ConnectionIDPrefix prefixes every connection identifier.
	ConnectionIDPrefix = "conn_"

	// ConnectionIDRawLength is the length of the Base62 part of a connection identifier.
	ConnectionIDRawLength = 12
)

// base62 returns n cryptographically random Base62 characters.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// ConnectionID generates a process-unique identifier for a live socket connection.
func ConnectionID() (string, error) {
	raw, err := base62(ConnectionIDRawLength)
	if err != nil {
		return "", err
	}
	return ConnectionIDPrefix + raw, nil
}

// IsValidConnectionID checks the prefix, length and alphabet of a connection identifier.
func IsValidConnectionID(id string) bool {
	if !strings.HasPrefix(id, ConnectionIDPrefix) {
		return false
	}

	raw := id[len(ConnectionIDPrefix):]
	if len(raw) != ConnectionIDRawLength {
		return false
	}

	for _, char := range raw {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// GroupID generates a standard UUID v4 string for a new group.
func GroupID() string {
	return uuid.New().String()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	return uuid.Validate(s) == nil
}
