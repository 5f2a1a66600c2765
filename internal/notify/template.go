package notify

import "github.com/flosch/pongo2/v6"

// alertTemplate renders an Alert into an HTML body; kept as a package
// string rather than a template file since the notify package has no
// other assets to ship alongside a template directory.
const alertTemplate = `<h2>{{ subject }}</h2>
<p><strong>Severity:</strong> {{ severity }}</p>
<p>{{ body }}</p>`

func renderAlert(alert Alert) (string, error) {
	tpl, err := pongo2.FromString(alertTemplate)
	if err != nil {
		return "", err
	}
	return tpl.Execute(pongo2.Context{
		"subject":  alert.Subject,
		"severity": alert.Severity,
		"body":     alert.Body,
	})
}
