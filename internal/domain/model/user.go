package model

import "time"

// User is the minimal projection of the account directory this service needs:
// email matching for manual verification and the premium flag for batch grants.
type User struct {
	ID        string
	Email     string
	Premium   bool
	CreatedAt time.Time
}
