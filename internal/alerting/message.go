package alerting

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/hamed0406/domainguard/internal/domain"
	"github.com/hamed0406/domainguard/internal/notify"
)

var bodyTmpl = template.Must(template.New("alert").Parse(`<html><body>
<h2>{{.Headline}}</h2>
<p>{{.Detail}}</p>
<table>
<tr><td>Domain</td><td>{{.Domain}}</td></tr>
<tr><td>Alert</td><td>{{.Type}}</td></tr>
{{- if .Date}}
<tr><td>Date</td><td>{{.Date}}</td></tr>
{{- end}}
{{- if .Reason}}
<tr><td>Reason</td><td>{{.Reason}}</td></tr>
{{- end}}
<tr><td>Checked</td><td>{{.Checked}}</td></tr>
</table>
</body></html>`))

type bodyData struct {
	Headline string
	Detail   string
	Domain   string
	Type     string
	Date     string
	Reason   string
	Checked  string
}

// Render produces the email and SMS text for a trigger addressed to the
// target's owner.
func Render(tr Trigger, now time.Time) (notify.Message, error) {
	name := tr.Target.Name
	var headline, detail string

	switch tr.Type {
	case domain.AlertDomainExpiry:
		if tr.Expired {
			headline = fmt.Sprintf("Domain %s has expired", name)
			detail = "The registration date has passed. Renew it to keep the domain."
		} else {
			headline = fmt.Sprintf("Domain %s expires in %s", name, english.Plural(tr.Days, "day", "days"))
			detail = fmt.Sprintf("The registration runs out %s.", humanize.RelTime(tr.ExpiresAt, now, "ago", "from now"))
		}
	case domain.AlertSSLExpiry:
		headline = fmt.Sprintf("SSL certificate for %s expires in %s", name, english.Plural(tr.Days, "day", "days"))
		detail = fmt.Sprintf("The certificate stops being valid %s.", humanize.RelTime(tr.ExpiresAt, now, "ago", "from now"))
	case domain.AlertSSLInvalid:
		headline = fmt.Sprintf("SSL certificate problem on %s", name)
		detail = "The certificate presented by the server is expired or could not be read."
	case domain.AlertDomainDowntime:
		headline = fmt.Sprintf("%s is down", name)
		detail = "The site did not answer with a 2xx or 3xx status."
	default:
		return notify.Message{}, fmt.Errorf("render: unknown alert type %q", tr.Type)
	}

	data := bodyData{
		Headline: headline,
		Detail:   detail,
		Domain:   name,
		Type:     string(tr.Type),
		Reason:   tr.Reason,
		Checked:  now.UTC().Format(time.RFC1123),
	}
	if !tr.ExpiresAt.IsZero() {
		data.Date = tr.ExpiresAt.UTC().Format("2006-01-02")
	}
	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return notify.Message{}, fmt.Errorf("render %s body: %w", tr.Type, err)
	}

	text := headline
	if tr.Reason != "" {
		text += ": " + tr.Reason
	}

	return notify.Message{
		ToEmail:  tr.Target.Owner.Email,
		ToPhone:  tr.Target.Owner.Phone,
		Subject:  "[domainguard] " + headline,
		HTMLBody: buf.String(),
		Text:     text,
		TargetID: tr.Target.ID,
		Type:     tr.Type,
	}, nil
}
