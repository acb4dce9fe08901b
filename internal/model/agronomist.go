package model

import "time"

type AgronomistStatus string

const (
    AgronomistPending  AgronomistStatus = "pending"
    AgronomistVerified AgronomistStatus = "verified"
    AgronomistRejected AgronomistStatus = "rejected"
)

type Availability string

const (
    Available   Availability = "available"
    Unavailable Availability = "unavailable"
)

// AgronomistProfile models a row of `agronomist_profiles`, the 1:1
// extension of an agronomist user.  IDProofID references the uploaded
// identity document.
type AgronomistProfile struct {
    ID            uint64           // agronomist_profiles.id
    UserID        uint64           // agronomist_profiles.user_id (unique)
    Qualification string           // agronomist_profiles.qualification
    Experience    int              // agronomist_profiles.experience (years)
    IDProofID     *uint64          // agronomist_profiles.id_proof_id (nullable)
    Status        AgronomistStatus // agronomist_profiles.status
    Availability  Availability     // agronomist_profiles.availability
    Bio           string           // agronomist_profiles.bio
    CreatedAt     time.Time        // agronomist_profiles.created_at
    UpdatedAt     time.Time        // agronomist_profiles.updated_at

    IDProof *Media // joined when listing for admins
}
