package accounts

import (
	"strings"
	"time"
)

// ProviderGoogle identifies Google as the social login provider.
const ProviderGoogle = "google"

// unusablePasswordPrefix marks accounts that can only sign in through a social provider.
const unusablePasswordPrefix = "!"

// User is a platform account.
type User struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string     `gorm:"column:username;size:150;not null;uniqueIndex"`
	Email        string     `gorm:"column:email;size:254;not null;default:'';index"`
	FirstName    string     `gorm:"column:first_name;size:150;not null;default:''"`
	LastName     string     `gorm:"column:last_name;size:150;not null;default:''"`
	PasswordHash string     `gorm:"column:password_hash;size:128;not null;default:''"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	IsStaff      bool       `gorm:"column:is_staff;not null;default:false"`
	IsSuperuser  bool       `gorm:"column:is_superuser;not null;default:false"`
	Location     string     `gorm:"column:location;size:255;not null;default:''"`
	Latitude     *float64   `gorm:"column:latitude"`
	Longitude    *float64   `gorm:"column:longitude"`
	DateJoined   time.Time  `gorm:"column:date_joined;not null;index"`
	LastLogin    *time.Time `gorm:"column:last_login;index"`
}

// TableName binds User to the users table.
func (User) TableName() string {
	return "users"
}

// HasUsablePassword reports whether the account can sign in with a password.
func (u User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, unusablePasswordPrefix)
}

// SocialAccount links a user to an identity held by an external provider.
type SocialAccount struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     uint      `gorm:"column:user_id;not null;index"`
	Provider   string    `gorm:"column:provider;size:30;not null;uniqueIndex:idx_social_provider_uid,priority:1"`
	UID        string    `gorm:"column:uid;size:191;not null;uniqueIndex:idx_social_provider_uid,priority:2"`
	ExtraData  string    `gorm:"column:extra_data;type:text;not null;default:'{}'"`
	DateJoined time.Time `gorm:"column:date_joined;autoCreateTime"`
	LastLogin  time.Time `gorm:"column:last_login;autoCreateTime"`
}

// TableName binds SocialAccount to the social_accounts table.
func (SocialAccount) TableName() string {
	return "social_accounts"
}

// BearerToken is the opaque API credential issued to a user. Each user holds at most one.
type BearerToken struct {
	Key       string    `gorm:"column:token_key;primaryKey;size:40;not null"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName binds BearerToken to the auth_tokens table.
func (BearerToken) TableName() string {
	return "auth_tokens"
}

// Profile is the read-only public view of a user.
type Profile struct {
	ID         uint       `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Location   string     `json:"location"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"`
}

// ProfileOf serializes user without credential material.
func ProfileOf(user User) Profile {
	return Profile{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Location:   user.Location,
		Latitude:   user.Latitude,
		Longitude:  user.Longitude,
		DateJoined: user.DateJoined,
		LastLogin:  user.LastLogin,
	}
}

// ProfileUpdate holds the self-service editable fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Location  *string
	Latitude  *float64
	Longitude *float64
}
