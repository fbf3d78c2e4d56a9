package provision

import (
	"crypto/rand"
	"fmt"
)

const (
	tenantIdLength  = 16
	tenantIdCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// randomTenantId returns a cryptographically random lowercase alphanumeric
// id. Bytes that would bias the modulo are redrawn.
func randomTenantId() (string, error) {
	id := make([]byte, 0, tenantIdLength)
	buf := make([]byte, tenantIdLength)

	// 252 is the largest multiple of len(charset) below 256.
	const limit = 252

	for len(id) < tenantIdLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("error reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			id = append(id, tenantIdCharset[int(b)%len(tenantIdCharset)])
			if len(id) == tenantIdLength {
				break
			}
		}
	}

	return string(id), nil
}
