package main

import (
	"fmt"
	"html/template"
	"io"
)

var googleSetupSteps = []string{
	"Create a Google Cloud project",
	"Enable Calendar API",
	"Create OAuth 2.0 credentials",
	"Add your credentials to environment variables",
}

var caldavSetupSteps = []string{
	"Add a [caldav_servers.<name>] section with server_url, username and password",
	"Set general.caldav_server to that name",
}

// PanelView is what both the status command and the web panel render.
type PanelView struct {
	Provider  string
	Connected bool
	Message   string
	Steps     []string
}

func newPanelView(svc *CalendarService, message string) PanelView {
	view := PanelView{
		Provider:  svc.ProviderName(),
		Connected: svc.IsConnected(),
		Message:   message,
	}
	if !view.Connected {
		view.Steps = setupSteps(view.Provider)
	}
	return view
}

func setupSteps(provider string) []string {
	if provider == "caldav" {
		return caldavSetupSteps
	}
	return googleSetupSteps
}

func (v PanelView) ConnectLabel() string {
	if v.Provider == "caldav" {
		return "Connect to CalDAV server"
	}
	return "Connect to Google Calendar"
}

func renderTextPanel(w io.Writer, view PanelView) {
	if view.Message != "" {
		fmt.Fprintln(w, view.Message)
	}
	if view.Connected {
		fmt.Fprintf(w, "✅ Connected (%s)\n", view.Provider)
		fmt.Fprintln(w, "Run 'taskcal disconnect' to Disconnect")
		return
	}

	fmt.Fprintf(w, "❌ Not connected (%s)\n", view.Provider)
	fmt.Fprintf(w, "Run 'taskcal connect' to %s\n", view.ConnectLabel())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📝 Setup Required:")
	for i, step := range view.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}

var panelTemplate = template.Must(template.New("panel").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Calendar Sync</title>
<style>
body { font-family: sans-serif; max-width: 32rem; margin: 2rem auto; }
button { color: white; border: none; border-radius: 8px; padding: 12px 16px; font-size: 14px; font-weight: 600; cursor: pointer; }
.connect { background-color: #4285f4; }
.disconnect { background-color: #ff6b6b; }
.setup { margin-top: 12px; padding: 12px; background-color: #f0f4ff; border-radius: 8px; font-size: 12px; }
</style>
</head>
<body>
<h1>📅 Calendar Sync</h1>
{{if .Message}}<p class="message">{{.Message}}</p>{{end}}
{{if .Connected}}
<p>Connected to {{.Provider}}.</p>
<form method="post" action="/disconnect"><button class="disconnect" type="submit">Disconnect</button></form>
{{else}}
<form method="post" action="/connect"><button class="connect" type="submit">{{.ConnectLabel}}</button></form>
<div class="setup">
<p><strong>📝 Setup Required:</strong></p>
{{range $i, $step := .Steps}}<p>{{inc $i}}. {{$step}}</p>
{{end}}</div>
{{end}}
</body>
</html>
`))
