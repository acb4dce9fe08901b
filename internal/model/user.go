package model

import (
    "strings"
    "time"
)

// Role is the value stored in users.role.
type Role string

const (
    RoleFarmer     Role = "farmer"
    RoleAgronomist Role = "agronomist"
    RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleFarmer, RoleAgronomist, RoleAdmin:
        return true
    }
    return false
}

// Language is the preferred interface language of a user.
type Language string

const (
    LangEnglish Language = "en"
    LangHindi   Language = "hi"
    LangMarathi Language = "mr"
)

// ParseLanguage normalises s, falling back to English.
func ParseLanguage(s string) Language {
    switch Language(strings.ToLower(strings.TrimSpace(s))) {
    case LangHindi:
        return LangHindi
    case LangMarathi:
        return LangMarathi
    default:
        return LangEnglish
    }
}

// User represents a row of the `users` table.  The json tags are omitted
// on purpose; handlers render sanitized views without PasswordHash.
//
// Fields:
//  ID             – primary key identifier of the user.
//  FullName       – display name.
//  MobileNumber   – unique 10 digit mobile number used to log in.
//  PasswordHash   – bcrypt hash, never the plain password.
//  Role           – farmer | agronomist | admin.
//  ProfilePhotoID – media row holding the profile photo, nil when unset.
//  Longitude/Latitude – home coordinates, [0,0] when unknown.
//  District/Taluka    – address used for agronomist matching.
//  Language       – en | hi | mr.
type User struct {
    ID             uint64    // users.id
    FullName       string    // users.full_name
    MobileNumber   string    // users.mobile_number
    PasswordHash   string    // users.password_hash
    Role           Role      // users.role
    ProfilePhotoID *uint64   // users.profile_photo_id (nullable)
    Longitude      float64   // users.longitude
    Latitude       float64   // users.latitude
    District       string    // users.district
    Taluka         string    // users.taluka
    Language       Language  // users.language
    CreatedAt      time.Time // users.created_at
    UpdatedAt      time.Time // users.updated_at

    // ProfilePhoto is populated by queries that join the media table.
    ProfilePhoto *Media
}

// HasLocation reports whether coordinates other than the [0,0] default are set.
func (u User) HasLocation() bool {
    return u.Longitude != 0 || u.Latitude != 0
}
