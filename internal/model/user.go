package model

import "fmt"

// User is a read-only record of the identity directory.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url"`
}

// Avatar returns the stored avatar or the generated placeholder.
func (u *User) Avatar() string {
	if u.AvatarURL != "" {
		return u.AvatarURL
	}
	return fmt.Sprintf("https://i.pravatar.cc/150?u=%s", u.ID)
}

// Trip is a read-only record of the trip directory.
type Trip struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	HostID      string `json:"host_id"`
}
