// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is the stable identity root. Sensitive PII never lives here;
// it belongs to Profile ciphertext.
type User struct {
	ID       uuid.UUID // PK
	Email    string    // unique
	PwdHash  []byte    // Argon2id(password, SaltAuth)
	SaltAuth []byte    // per-user auth salt

	Phone            string
	PhoneConfirmedAt *time.Time

	SecondFactorEnabled       bool
	SecondFactorAttemptsCount int        // non-negative
	SecondFactorLockedAt      *time.Time // nil unless locked

	// DirectOTP is present only while a one-time code is outstanding.
	DirectOTP       string
	DirectOTPSentAt *time.Time

	ConfirmedAt *time.Time
	CreatedAt   time.Time
}

// Profile is one encrypted-PII snapshot belonging to a User.
// At most one profile per user is active; plaintext PII is never persisted.
type Profile struct {
	ID          uuid.UUID // PK
	UserID      uuid.UUID // FK -> users.id
	Active      bool
	VerifiedAt  *time.Time
	ActivatedAt *time.Time

	// EncryptedPII is the AEAD envelope produced by crypto.Encryptor;
	// nil until the first encryption.
	EncryptedPII []byte

	// SSNSignature is the keyed fingerprint of the normalized SSN,
	// used only for the active-profile uniqueness check.
	SSNSignature string

	CreatedAt time.Time
}

// Verified reports whether identity proofing completed for this profile.
func (p *Profile) Verified() bool { return p.VerifiedAt != nil }

// Identity is the per-(user, relying service) pseudonymous link. Its UUID is
// the stable identifier released to that service in every assertion.
type Identity struct {
	UserID              uuid.UUID
	ServiceProvider     string // relying party issuer
	UUID                uuid.UUID
	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
}

// PiiAttributes is the plaintext PII value object. It exists only in process
// memory during a request; persistence always goes through the Encryptor.
type PiiAttributes struct {
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Address1   string `json:"address1,omitempty"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Zipcode    string `json:"zipcode,omitempty"`
	DOB        string `json:"dob,omitempty"`
	SSN        string `json:"ssn,omitempty"`
	Phone      string `json:"phone,omitempty"`
}
