// internal/model/user.go
package model

import "time"

const (
    RoleAdvertiser   = "advertiser"
    RoleChannelOwner = "channel_owner"
    RoleBoth         = "both"
)

type User struct {
    ID         int64     `db:"id" json:"id"`
    TelegramID int64     `db:"telegram_id" json:"telegram_id"`
    Username   string    `db:"username" json:"username"`
    Role       string    `db:"role" json:"role"`
    // Balance is a cached running total in minor currency units. It is only
    // mutated inside the same DB transaction as a ledger insert.
    Balance   int64      `db:"balance" json:"balance"`
    IsActive  bool       `db:"is_active" json:"is_active"`
    CreatedAt time.Time  `db:"created_at" json:"created_at"`
    UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

func (u *User) CanAdvertise() bool {
    return u.Role == RoleAdvertiser || u.Role == RoleBoth
}

func (u *User) CanOwnChannels() bool {
    return u.Role == RoleChannelOwner || u.Role == RoleBoth
}
