package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const maxTeamsIntervals = 20

// Service delivers reports and alerts via Teams and e-mail
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends a report via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.postToTeams(s.buildTeamsMessage(report)); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent report for %s to Teams", report.ContentID)
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent report for %s via email", report.ContentID)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// SendAlert posts an alert card to Teams when a webhook is configured
func (s *Service) SendAlert(alert *models.Alert) error {
	if s.config.TeamsWebhookURL == "" {
		logrus.Warnf("Alert (%s): %s - %s", alert.Type, alert.Title, alert.Message)
		return nil
	}

	if err := s.postToTeams(s.buildAlertMessage(alert)); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	logrus.Infof("Sent %s alert %s to Teams", alert.Type, alert.ID)
	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Danmaku Digest - %s", report.ContentID),
		Text:    "Segment analysis finished",
	}

	facts := []TeamsFact{
		{Name: "Generated", Value: report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	if a := report.Artifact; a != nil {
		message.Text = fmt.Sprintf("%d segments from %d danmaku", len(a.Intervals), a.MessageCount)
		facts = append(facts,
			TeamsFact{Name: "Duration", Value: fmt.Sprintf("%ds (analyzed %ds)", a.DurationSec, a.AnalyzedDurationSec)},
			TeamsFact{Name: "Comments", Value: fmt.Sprintf("%d", a.CommentCount)},
		)
	}
	if report.Location != "" {
		facts = append(facts, TeamsFact{Name: "Artifact", Value: report.Location})
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if report.Artifact != nil && len(report.Artifact.Intervals) > 0 {
		var lines []string
		for i, iv := range report.Artifact.Intervals {
			if i >= maxTeamsIntervals {
				lines = append(lines, fmt.Sprintf("... %d more", len(report.Artifact.Intervals)-i))
				break
			}
			line := fmt.Sprintf("**%s-%s** %s (%d danmaku)", iv.StartTS, iv.EndTS, iv.Heat, iv.MessageCount)
			if iv.Summary != "" {
				line += ": " + iv.Summary
			}
			lines = append(lines, line)
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Segments",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) buildAlertMessage(alert *models.Alert) *TeamsMessage {
	color := "0078D4"
	switch alert.Type {
	case "critical":
		color = "D13438"
	case "urgent":
		color = "FF8C00"
	}

	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: color,
		Title:      alert.Title,
		Text:       alert.Message,
		Sections: []TeamsSection{{
			Facts: []TeamsFact{
				{Name: "Type", Value: alert.Type},
				{Name: "Video", Value: alert.ContentID},
				{Name: "Raised", Value: alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
			},
		}},
	}
}

func (s *Service) sendEmail(report *models.Report) error {
	subject := fmt.Sprintf("Danmaku Digest - %s", report.ContentID)
	if report.Artifact != nil {
		subject += fmt.Sprintf(" (%d segments)", len(report.Artifact.Intervals))
	}

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", s.buildEmailText(report))
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Danmaku Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #00a1d6; color: white; padding: 20px; border-radius: 5px; }
        .segment { border-left: 4px solid #00a1d6; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .segment-title { font-weight: bold; margin-bottom: 5px; }
        .segment-meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Danmaku Digest: {{.ContentID}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>

    {{with .Artifact}}
    <p><strong>Duration:</strong> {{.DurationSec}}s (analyzed {{.AnalyzedDurationSec}}s)
       | <strong>Danmaku:</strong> {{.MessageCount}}
       | <strong>Comments:</strong> {{.CommentCount}}</p>

    <h2>Segments</h2>
    {{range .Intervals}}
    <div class="segment">
        <div class="segment-title">{{.StartTS}}-{{.EndTS}} {{.Heat}}</div>
        <div class="segment-meta">{{.MessageCount}} danmaku</div>
        {{if .Summary}}<p>{{.Summary | truncate 200}}</p>{{end}}
    </div>
    {{end}}
    {{end}}

    {{if .Location}}<p>Full data: {{.Location}}</p>{{end}}
    <hr>
    <p><small>This digest was generated automatically by the Danmaku Digest Bot.</small></p>
</body>
</html>
`

func (s *Service) buildEmailHTML(report *models.Report) (string, error) {
	t := template.New("email").Funcs(template.FuncMap{
		"truncate": func(length int, s string) string {
			r := []rune(s)
			if len(r) <= length {
				return s
			}
			return string(r[:length]) + "..."
		},
	})

	t, err := t.Parse(emailTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Danmaku Digest - %s\n", report.ContentID))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(report.Text)
	text.WriteString("\n")
	if report.Location != "" {
		text.WriteString(fmt.Sprintf("\nFull data: %s\n", report.Location))
	}
	text.WriteString("\n---\nThis digest was generated automatically by the Danmaku Digest Bot.\n")

	return text.String()
}
