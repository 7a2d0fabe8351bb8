package channels

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
)

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// frenchDate renders t as "19 juillet 2025 à 08:30".
func frenchDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d à %02d:%02d", t.Day(), frenchMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

var emailTemplate = template.Must(template.New("email").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0; text-align: center;">
    <h1 style="color: white; margin: 0; font-size: 24px;">{{.Subject}}</h1>
  </div>
  <div style="background: white; padding: 30px; border: 1px solid #e1e5e9; border-top: none;">
    <div style="background: #f8f9fa; padding: 20px; border-radius: 8px; border-left: 4px solid #007bff; margin: 20px 0;">
      <pre style="white-space: pre-wrap; font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; color: #333; line-height: 1.6;">{{.Body}}</pre>
    </div>
    <div style="margin-top: 20px; padding: 15px; background: #e3f2fd; border-radius: 8px;">
      <h3 style="margin: 0 0 10px 0; color: #1976d2; font-size: 16px;">Informations du contact</h3>
      <p style="margin: 5px 0; color: #555;"><strong>Nom:</strong> {{.Name}}</p>
      <p style="margin: 5px 0; color: #555;"><strong>Email:</strong> {{.Email}}</p>
      {{- if .Entreprise}}
      <p style="margin: 5px 0; color: #555;"><strong>Entreprise:</strong> {{.Entreprise}}</p>
      {{- end}}
      {{- if .Fonction}}
      <p style="margin: 5px 0; color: #555;"><strong>Fonction:</strong> {{.Fonction}}</p>
      {{- end}}
    </div>
  </div>
  <div style="background: #f8f9fa; padding: 20px; border-radius: 0 0 10px 10px; text-align: center; border: 1px solid #e1e5e9; border-top: none;">
    <p style="color: #6c757d; font-size: 12px; margin: 0;">Cet email a été envoyé depuis votre application de gestion de contacts</p>
    <p style="color: #6c757d; font-size: 12px; margin: 5px 0 0 0;">{{.Date}}</p>
  </div>
</div>
`))

type emailView struct {
	Subject    string
	Body       string
	Name       string
	Email      string
	Entreprise string
	Fonction   string
	Date       string
}

// renderEmail wraps a personalized message in the branded HTML layout.
func renderEmail(r model.Recipient, msg model.Message, at time.Time) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailView{
		Subject:    msg.Subject,
		Body:       msg.Body,
		Name:       r.DisplayName(),
		Email:      r.Email,
		Entreprise: r.Entreprise,
		Fonction:   r.Fonction,
		Date:       frenchDate(at),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
