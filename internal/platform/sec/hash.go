// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package sec

import (
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain-text password using the bcrypt algorithm.
//
// The output embeds the algorithm identifier, per-call random salt, and work
// factor, so verification requires no external state.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
//
// It never returns an error: a malformed or corrupt hash is logged and
// reported as a mismatch.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	if err != nil && err != bcrypt.ErrMismatchedHashAndPassword {
		slog.Warn("password_hash_comparison_error", slog.Any("error", err))
	}
	return err == nil
}
