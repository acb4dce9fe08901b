package model

import "time"

// Media is uploaded file metadata.  PublicID is the object key in the bucket
// and is what deletion needs.
type Media struct {
    ID          uint64    // media.id
    OwnerID     *uint64   // media.owner_id (nullable)
    URL         string    // media.url
    PublicID    string    // media.public_id
    ContentType string    // media.content_type
    SizeBytes   int64     // media.size_bytes
    CreatedAt   time.Time // media.created_at
}
