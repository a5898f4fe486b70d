// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import "time"

// Token lifetimes and sizes for the out-of-band email flows.
//
// Verification tokens are deliberately long-lived (a user may open the
// email a day later); reset tokens are short-lived because they grant a
// password change to whoever holds them.
const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = 1 * time.Hour

	// SecureTokenBytes is the entropy fed into each emailed token.
	// 32 bytes yields a 43-character URL-safe string.
	SecureTokenBytes = 32
)

// Reserved role names seeded at bootstrap.
const (
	RoleAdmin         = "admin"
	RoleDataScientist = "data_scientist"
	RoleRegularUser   = "regular_user"
)
