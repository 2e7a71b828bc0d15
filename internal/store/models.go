package store

import "time"

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	DisplayName       string
	Provider          string
	ProviderName      string
	ProviderAvatarURL string
	CreatedAt         time.Time
}

type Profile struct {
	ID          string
	Email       string
	DisplayName string
	ImageURL    string
	CreatedAt   time.Time
}

type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
}
