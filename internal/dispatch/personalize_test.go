package dispatch

import (
	"strings"
	"testing"

	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestPersonalize_EmptyAttribute(t *testing.T) {
	tpl := model.Message{Body: "Bonjour [Prénom] [Nom], vous travaillez chez [Entreprise]."}
	r := model.Recipient{Prenom: "Ana", Nom: "Ra", Entreprise: ""}

	got := Personalize(tpl, r)

	assert.Equal(t, "Bonjour Ana Ra, vous travaillez chez .", got.Body)
}

func TestPersonalize_UnknownTokenVerbatim(t *testing.T) {
	tpl := model.Message{Subject: "[Prénom] / [Ville]", Body: "[Fonction] [Email] [Téléphone] [Nom] [Nom]"}
	r := model.Recipient{Prenom: "Hery", Nom: "Be", Fonction: "DAF", Email: "h@ex.mg", Phone: "0341234567"}

	got := Personalize(tpl, r)

	assert.Equal(t, "Hery / [Ville]", got.Subject)
	assert.Equal(t, "DAF h@ex.mg 0341234567 Be Be", got.Body)
}

func TestPersonalize_PureAndIsolated(t *testing.T) {
	tpl := model.Message{Subject: "[Prénom]", Body: "[Prénom] [Nom] [Fonction] [Entreprise]"}
	a := model.Recipient{Prenom: "Alpha", Nom: "Aa", Fonction: "Achat", Entreprise: "Airmad"}
	b := model.Recipient{Prenom: "Bravo", Nom: "Bb", Fonction: "Banque", Entreprise: "BNI"}

	first := Personalize(tpl, a)
	_ = Personalize(tpl, b)
	second := Personalize(tpl, a)

	assert.Equal(t, first, second)
	for _, attr := range []string{b.Prenom, b.Nom, b.Fonction, b.Entreprise} {
		assert.False(t, strings.Contains(first.Body, attr))
	}
	assert.Equal(t, "[Prénom]", tpl.Subject)
}

func TestPhoneHelpers(t *testing.T) {
	valid := []string{"0341234567", "+261341234567", "034 12 345 67"}
	for _, p := range valid {
		assert.True(t, ValidMalagasyPhone(p), p)
	}
	invalid := []string{"", "341234567", "+33612345678", "03412345678", "034-123-4567"}
	for _, p := range invalid {
		assert.False(t, ValidMalagasyPhone(p), p)
	}

	assert.Equal(t, "+261341234567", FormatPhone("0341234567"))
	assert.Equal(t, "+261341234567", FormatPhone("261 34 12 345 67"))
	assert.Equal(t, "+261341234567", FormatPhone("+261341234567"))
	assert.Equal(t, "12345", FormatPhone("12345"))
}
