package store

import "time"

// Owner is whoever a draft belongs to: an anonymous wizard session or a
// registered account. Anonymous owners exist only through their refresh
// sessions; registered ones also have a users row.
type Owner struct {
	ID           string
	DisplayName  string
	IsRegistered bool
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
