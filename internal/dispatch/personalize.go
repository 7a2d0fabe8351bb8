package dispatch

import (
	"strings"

	"github.com/nimasrn/crm-dispatch/internal/model"
)

// Personalize substitutes every known token of tpl with r's attributes. A
// missing attribute becomes the empty string, unknown tokens stay verbatim.
func Personalize(tpl model.Message, r model.Recipient) model.Message {
	rep := strings.NewReplacer(
		"[Prénom]", r.Prenom,
		"[Prenom]", r.Prenom,
		"[Nom]", r.Nom,
		"[Fonction]", r.Fonction,
		"[Entreprise]", r.Entreprise,
		"[Email]", r.Email,
		"[Téléphone]", r.Phone,
		"[Telephone]", r.Phone,
	)
	return model.Message{
		Subject: rep.Replace(tpl.Subject),
		Body:    rep.Replace(tpl.Body),
	}
}
