// Package base62 provides random base62 string generation suitable for
// unguessable state values and nonces.
package base62

import (
	"errors"

	"github.com/hashicorp/go-uuid"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Random generates a random string of the given length using the base62
// character set.  Bytes from the underlying CSPRNG are rejection-sampled so
// every character is uniformly distributed.
func Random(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be greater than zero")
	}
	out := make([]byte, 0, length)
	for {
		// request a few extra bytes to reduce the expected number of reads
		buf, err := uuid.GenerateRandomBytes(length + (length / 4) + 1)
		if err != nil {
			return "", err
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 that fits in a byte; anything
			// above it would bias the sample
			if b >= 248 {
				continue
			}
			out = append(out, charset[b%62])
			if len(out) == length {
				return string(out), nil
			}
		}
	}
}
