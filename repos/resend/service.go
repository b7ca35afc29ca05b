package resend

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	resend "github.com/resend/resend-go/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

type emailSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Service sends event announcements to the group mailing list.
type Service struct {
	emails  emailSender
	from    string
	to      []string
	hostURL string
}

// NewService returns nil when no API key or recipients are configured, which
// turns announcements off.
func NewService(apiKey, from string, to []string, hostURL string) *Service {
	if apiKey == "" || len(to) == 0 {
		return nil
	}
	return &Service{
		emails:  resend.NewClient(apiKey).Emails,
		from:    from,
		to:      to,
		hostURL: hostURL,
	}
}

// AnnounceEvent mails the group about a newly posted event.
func (s *Service) AnnounceEvent(ctx context.Context, a Announcement) error {
	if s == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderAnnouncement(a, s.hostURL)
	if err != nil {
		return xerrors.Errorf("render announcement: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      s.to,
		Subject: fmt.Sprintf("New %s: %s", a.Category, a.Title),
		Html:    body,
	}

	sent, err := s.emails.Send(params)
	if err != nil {
		return xerrors.Errorf("failed to send announcement for %s: %w", a.EventID, err)
	}
	log.Printf("Announced event %s (mail %s)", a.EventID, sent.Id)
	return nil
}

var announcementTemplate = template.Must(template.New("announcement").Parse(`<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: Arial, sans-serif;
            background-color: #f4f4f4;
            margin: 0;
            padding: 20px;
        }
        .container {
            background-color: #ffffff;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        .button {
            display: block;
            width: 200px;
            height: 50px;
            margin: 20px auto;
            background-color: #007BFF;
            color: #ffffff;
            font-size: 16px;
            text-align: center;
            line-height: 50px;
            text-decoration: none;
            border-radius: 5px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h2>{{.Title}}</h2>
        <p><strong>{{.Category}}</strong> on {{.Date}} at {{.Time}}{{if .Location}}, {{.Location}}{{end}}</p>
        {{if .Description}}<p>{{.Description}}</p>{{end}}
        <p>Posted by {{.PostedBy}}</p>
        {{if .Link}}<a href="{{.Link}}" class="button">Join</a>{{end}}
    </div>
</body>
</html>`))

func renderAnnouncement(a Announcement, hostURL string) (string, error) {
	data := struct {
		Announcement
		Link string
	}{Announcement: a}
	if hostURL != "" {
		data.Link = fmt.Sprintf("%s/events/%s", hostURL, a.EventID)
	}

	var buf bytes.Buffer
	if err := announcementTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
