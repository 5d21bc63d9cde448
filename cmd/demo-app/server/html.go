package server

import (
	"bytes"
	"html/template"
	"net/http"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <title>{{template "title" .}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 640px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-bottom: 10px; }
        .subtitle { color: #666; margin-bottom: 30px; }
        a.enter, button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            text-decoration: none;
            cursor: pointer;
        }
        label { display: block; margin: 12px 0 4px; color: #333; }
        input { width: 100%; padding: 8px; box-sizing: border-box; }
        .error { color: #c62828; margin: 12px 0; }
    </style>
</head>
<body>
    <div class="container">
{{template "body" .}}
    </div>
</body>
</html>{{end}}`

// homePage is the anonymous landing view.
var homePage = page(`
{{define "title"}}Home{{end}}
{{define "body"}}
        <h1>Micronaut Auth0 demo</h1>
        <p class="subtitle">Just click on <a class="enter" href="/oauth/login">Enter</a> to see who you are.</p>
        {{if .Name}}<p>Signed in. <a href="/logout">Log out</a></p>{{end}}
{{end}}`)

// profilePage shows the signed-in identity.
var profilePage = page(`
{{define "title"}}Profile{{end}}
{{define "body"}}
        <h1>Welcome</h1>
        <p class="subtitle">You are signed in as <span id="name">{{.Name}}</span></p>
        <p><a class="enter" href="/oauth/login">Enter</a> <a href="/logout">Log out</a></p>
{{end}}`)

// loginPage is the identity provider's universal login form.
var loginPage = page(`
{{define "title"}}Log in{{end}}
{{define "body"}}
        <h1>Log in</h1>
        <p class="subtitle">Log in to continue to the demo app.</p>
        {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
        <form method="post" action="/login">
            <input type="hidden" name="client_id" value="{{.ClientID}}">
            <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
            <input type="hidden" name="state" value="{{.State}}">
            <label for="username">Email address</label>
            <input id="username" name="username" type="text" autocomplete="username">
            <label for="password">Password</label>
            <input id="password" name="password" type="password" autocomplete="current-password">
            <p><button type="submit" name="action" value="default">Continue</button></p>
        </form>
{{end}}`)

func page(body string) *template.Template {
	return template.Must(template.Must(template.New("layout").Parse(layout)).Parse(body))
}

// render executes t into a buffer first so a template error still yields a
// clean 500.
func render(w http.ResponseWriter, status int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
