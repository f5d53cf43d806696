package mailer

import (
	"bytes"
	"html/template"
	"time"
)

var (
	twoFactorTmpl = template.Must(template.New("2fa").Parse(`<html><body>
<p>Hello {{.Name}},</p>
<p>Your sign-in code is <strong>{{.Code}}</strong>. It expires in {{.Minutes}} minutes.</p>
<p>If you did not try to sign in from {{.IP}}, change your password.</p>
</body></html>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<html><body>
<p>Hello {{.Name}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>The link expires in {{.Minutes}} minutes. Ignore this message if you did not ask for it.</p>
</body></html>`))

	alertTmpl = template.Must(template.New("alert").Parse(`<html><body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Link}}<p><a href="{{.Link}}">View details</a></p>{{end}}
</body></html>`))
)

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// templates are static, failing here is a programming error
		panic(err)
	}
	return buf.String()
}

func TwoFactorCode(to, name, code, ip string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your sign-in code",
		HTML: render(twoFactorTmpl, map[string]any{
			"Name": name, "Code": code, "IP": ip, "Minutes": int(ttl.Minutes()),
		}),
	}
}

func PasswordReset(to, name, link string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		HTML: render(resetTmpl, map[string]any{
			"Name": name, "Link": link, "Minutes": int(ttl.Minutes()),
		}),
	}
}

func AlertNotification(to, title, message, link string) Message {
	return Message{
		To:      to,
		Subject: title,
		HTML: render(alertTmpl, map[string]any{
			"Title": title, "Message": message, "Link": link,
		}),
	}
}
