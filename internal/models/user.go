package models

import "time"

// User identifies a message sender or conversation participant. Users are
// owned by the account service; this service only references them.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}
