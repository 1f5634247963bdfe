package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/k3a/html2text"
)

// RenderedEmail is the deterministic output of one notification template.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// VulnerabilityAlertData feeds the vulnerability alert template.
type VulnerabilityAlertData struct {
	RuleName    string
	CVEID       string
	Severity    string
	CVSSScore   float64
	Description string
	DetailURL   string
}

// SharedItemData feeds the shared-item notice template.
type SharedItemData struct {
	SenderName string
	ItemTitle  string
	ItemURL    string
}

// TeamInvitationData feeds the team invitation template.
type TeamInvitationData struct {
	InviterName string
	TeamName    string
	AcceptURL   string
}

var (
	vulnAlertTmpl = template.Must(template.New("vuln_alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a2e;">
  <h2>Security Alert: {{.CVEID}}</h2>
  <p>Your alert rule <strong>{{.RuleName}}</strong> matched a new vulnerability.</p>
  <table cellpadding="6">
    <tr><td><strong>CVE</strong></td><td>{{.CVEID}}</td></tr>
    <tr><td><strong>Severity</strong></td><td>{{.Severity}}</td></tr>
    <tr><td><strong>CVSS Score</strong></td><td>{{printf "%.1f" .CVSSScore}}</td></tr>
  </table>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .DetailURL}}<p><a href="{{.DetailURL}}">View details</a></p>{{end}}
</body>
</html>`))

	sharedItemTmpl = template.Must(template.New("shared_item").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a2e;">
  <h2>{{.SenderName}} shared an item with you</h2>
  <p><strong>{{.ItemTitle}}</strong></p>
  {{if .ItemURL}}<p><a href="{{.ItemURL}}">Open it</a></p>{{end}}
</body>
</html>`))

	teamInviteTmpl = template.Must(template.New("team_invite").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a2e;">
  <h2>You are invited to join {{.TeamName}}</h2>
  <p>{{.InviterName}} invited you to collaborate.</p>
  <p><a href="{{.AcceptURL}}">Accept invitation</a></p>
</body>
</html>`))
)

// RenderVulnerabilityAlert renders the vulnerability alert email.
// The only failure mode is a missing required field.
func RenderVulnerabilityAlert(data *VulnerabilityAlertData) (*RenderedEmail, error) {
	if data.CVEID == "" {
		return nil, fmt.Errorf("vulnerability alert requires a CVE id")
	}
	if data.RuleName == "" {
		return nil, fmt.Errorf("vulnerability alert requires a rule name")
	}
	subject := fmt.Sprintf("[%s] %s matched rule %q", data.Severity, data.CVEID, data.RuleName)
	return render(vulnAlertTmpl, subject, data)
}

// RenderSharedItemNotice renders the shared-item notification email.
func RenderSharedItemNotice(data *SharedItemData) (*RenderedEmail, error) {
	if data.SenderName == "" {
		return nil, fmt.Errorf("shared-item notice requires a sender name")
	}
	if data.ItemTitle == "" {
		return nil, fmt.Errorf("shared-item notice requires an item title")
	}
	subject := fmt.Sprintf("%s shared %q with you", data.SenderName, data.ItemTitle)
	return render(sharedItemTmpl, subject, data)
}

// RenderTeamInvitation renders the team invitation email.
func RenderTeamInvitation(data *TeamInvitationData) (*RenderedEmail, error) {
	if data.TeamName == "" {
		return nil, fmt.Errorf("team invitation requires a team name")
	}
	if data.AcceptURL == "" {
		return nil, fmt.Errorf("team invitation requires an accept URL")
	}
	subject := fmt.Sprintf("Invitation to join %s", data.TeamName)
	return render(teamInviteTmpl, subject, data)
}

func render(tmpl *template.Template, subject string, data any) (*RenderedEmail, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("template execution failed: %w", err)
	}
	html := buf.String()
	return &RenderedEmail{
		Subject: subject,
		HTML:    html,
		Text:    html2text.HTML2Text(html),
	}, nil
}
