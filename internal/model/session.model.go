package model

import "time"

// SessionUser is the identity kept for a browser session.
type SessionUser struct {
	ID    FlexID `json:"id_utilisateur"`
	Nom   string `json:"nom"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Session struct {
	ID        string      `json:"id"`
	User      SessionUser `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}
