//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds run the store tests under a detector that multiplies bcrypt time.
func passwordHashCost() int {
	return bcrypt.MinCost
}
