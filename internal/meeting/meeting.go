// Package meeting creates video meeting links and their invitation text.
package meeting

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
)

const DefaultBaseURL = "https://meet.google.com"

const letters = "abcdefghijklmnopqrstuvwxyz"

// NewLink returns baseURL followed by a code shaped like xxx-yyyy-zzz.
func NewLink(baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parts := make([]string, 0, 3)
	for _, n := range []int{3, 4, 3} {
		p, err := randomLetters(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(parts, "-"), nil
}

func randomLetters(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(letters)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = letters[idx.Int64()]
	}
	return string(b), nil
}

// Invitation is the email template sent to meeting attendees. The body
// keeps the [Prénom] token so every attendee gets a personal greeting.
func Invitation(title, link string, when time.Time) model.Message {
	return model.Message{
		Subject: "Invitation à la réunion: " + title,
		Body: fmt.Sprintf(`Bonjour [Prénom],

Vous êtes invité(e) à participer à la réunion suivante:

Titre: %s
Date: %s
Heure: %s

Lien Google Meet: %s

Cordialement`, title, when.Format("02/01/2006"), when.Format("15:04"), link),
	}
}
