package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Contact as served by the CRM backend. Older endpoints name the key
// id_contact, newer ones id; both decode into ID.
type Contact struct {
	ID           int64  `json:"id"`
	Nom          string `json:"nom"`
	Prenom       string `json:"prenom"`
	Email        string `json:"email"`
	Telephone    string `json:"telephone"`
	Adresse      string `json:"adresse,omitempty"`
	Fonction     string `json:"fonction"`
	Entreprise   string `json:"entreprise,omitempty"`
	EntrepriseID *int64 `json:"entreprise_id,omitempty"`
	Source       string `json:"source,omitempty"`
	Secteur      string `json:"secteur,omitempty"`
	Type         string `json:"type,omitempty"`
	Photo        string `json:"photo_de_profil,omitempty"`
}

func (c *Contact) UnmarshalJSON(b []byte) error {
	type plain Contact
	var aux struct {
		plain
		IDContact  *int64          `json:"id_contact"`
		Entreprise json.RawMessage `json:"entreprise"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*c = Contact(aux.plain)
	if c.ID == 0 && aux.IDContact != nil {
		c.ID = *aux.IDContact
	}
	c.Entreprise = entrepriseName(aux.Entreprise)
	return nil
}

// FullName is "prenom nom" trimmed.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.Prenom + " " + c.Nom)
}

func (c Contact) Recipient() Recipient {
	return Recipient{
		ID:         c.ID,
		Prenom:     c.Prenom,
		Nom:        c.Nom,
		Email:      strings.TrimSpace(c.Email),
		Phone:      strings.TrimSpace(c.Telephone),
		Fonction:   c.Fonction,
		Entreprise: c.Entreprise,
	}
}

// entrepriseName accepts either a plain name or a nested company object.
func entrepriseName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var name string
	if json.Unmarshal(raw, &name) == nil {
		return name
	}
	var obj Entreprise
	if json.Unmarshal(raw, &obj) == nil {
		return obj.RaisonSocial
	}
	return ""
}

type Entreprise struct {
	ID                int64  `json:"id"`
	RaisonSocial      string `json:"raisonSocial"`
	TelephoneStandard string `json:"telephoneStandard"`
	EmailStandart     string `json:"emailStandart"`
	AdresseID         int64  `json:"adresse_id"`
	UtilisateurID     int64  `json:"utilisateur_id"`
}

type Campagne struct {
	ID                  int64  `json:"id"`
	Libelle             string `json:"libelle"`
	Description         string `json:"description,omitempty"`
	ProjetProspectionID int64  `json:"projetProspection_id"`
}

type Opportunite struct {
	ID              int64           `json:"id_opportunite"`
	Titre           string          `json:"titre"`
	Description     string          `json:"description"`
	Contenu         string          `json:"contenu,omitempty"`
	DateInteraction string          `json:"date_interaction,omitempty"`
	DateCreation    string          `json:"date_creation,omitempty"`
	ProbAbillSuc    float64         `json:"prob_abill_suc"`
	Statut          string          `json:"statut"`
	EtapePipeline   string          `json:"etape_pipeline"`
	Montant         decimal.Decimal `json:"montant"`
	IDUtilisateur   int64           `json:"id_utilisateur"`
	IDEntreprise    int64           `json:"id_entreprise"`
}

// Closed reports whether the opportunity left the pipeline.
func (o Opportunite) Closed() bool {
	s := strings.ToLower(o.Statut + " " + o.EtapePipeline)
	return strings.Contains(s, "gagn") || strings.Contains(s, "perdu") || strings.Contains(s, "ferm") ||
		strings.Contains(s, "won") || strings.Contains(s, "lost") || strings.Contains(s, "closed")
}

type Interaction struct {
	ID              int64  `json:"id_interaction"`
	Type            string `json:"type"`
	DateInteraction string `json:"date_interaction"`
	Contenu         string `json:"contenu"`
	FichierJoint    string `json:"fichier_joint,omitempty"`
	IDContact       int64  `json:"id_contact"`
}

type Utilisateur struct {
	ID          FlexID `json:"id_utilisateur"`
	Nom         string `json:"nom"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Actif       bool   `json:"actif"`
	PhotoProfil string `json:"photo_profil,omitempty"`
}

type Tache struct {
	ID            int64  `json:"id_tache"`
	Titre         string `json:"titre"`
	Description   string `json:"description,omitempty"`
	DateEcheance  string `json:"date_echeance,omitempty"`
	EstRecurrente bool   `json:"est_recurrente"`
	Rappel        string `json:"rappel,omitempty"`
	Statut        string `json:"statut,omitempty"`
	IDOpportunite int64  `json:"id_opportunite"`
}

// HistoriqueAction is one logged sales action. Date is a calendar date
// ("2025-07-19") or a full timestamp depending on the writer.
type HistoriqueAction struct {
	ID               int64   `json:"id"`
	Date             string  `json:"date"`
	Commentaire      string  `json:"commentaire"`
	Action           string  `json:"action"`
	PourcentageVente float64 `json:"pourcentageVente"`
	EntrepriseID     *int64  `json:"entreprise_id"`
	CampagneID       *int64  `json:"campagne_id"`
	UtilisateurID    int64   `json:"utilisateur_id"`
}

// FlexID decodes ids sent as JSON numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil
}
