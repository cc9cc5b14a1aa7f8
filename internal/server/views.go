package server

import "html/template"

// loginPage renders the sign-in screen with the Microsoft authorize
// link. The href is built server-side so the page stays static.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>FundQuest</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 380px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
    text-align: center;
  }
  .card h1 {
    font-size: 1.25rem;
    font-weight: 600;
    margin-bottom: 0.25rem;
  }
  .card p.sub {
    font-size: 0.85rem;
    color: #666;
    margin-bottom: 1.5rem;
  }
  a.ms-signin {
    display: block;
    padding: 0.6rem;
    background: #1a1a1a;
    color: #fff;
    border-radius: 6px;
    font-size: 0.9rem;
    font-weight: 500;
    text-decoration: none;
    transition: background 0.15s;
  }
  a.ms-signin:hover { background: #333; }
  a.ms-signin:active { background: #000; }
</style>
</head>
<body>
<div class="card">
  <h1>FundQuest</h1>
  <p class="sub">Sign in with your organization account to continue.</p>
  <a class="ms-signin" href="{{.SignInURL}}">Sign in with Microsoft</a>
</div>
</body>
</html>`))

type loginData struct {
	SignInURL string
}

// errorPage shows a sign-in or dashboard failure. When Seconds is
// positive a meta refresh sends the browser to Target after the
// countdown; the link offers the same destination immediately.
var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if gt .Seconds 0}}<meta http-equiv="refresh" content="{{.Seconds}};url={{.Target}}">{{end}}
<title>FundQuest</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 420px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
    text-align: center;
  }
  .card h1 {
    font-size: 1.25rem;
    font-weight: 600;
    margin-bottom: 1rem;
  }
  .error {
    background: #fef2f2;
    color: #991b1b;
    border: 1px solid #fecaca;
    border-radius: 6px;
    padding: 0.6rem 0.75rem;
    font-size: 0.85rem;
    margin-bottom: 1rem;
    word-break: break-word;
  }
  p.sub {
    font-size: 0.85rem;
    color: #666;
  }
  a { color: #2563eb; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  <div class="error">{{.Message}}</div>
  {{if gt .Seconds 0}}<p class="sub">Redirecting in {{.Seconds}} seconds, or <a href="{{.Target}}">continue now</a>.</p>
  {{else}}<p class="sub"><a href="{{.Target}}">{{.TargetLabel}}</a></p>{{end}}
</div>
</body>
</html>`))

type errorData struct {
	Title       string
	Message     string
	Seconds     int
	Target      string
	TargetLabel string
}

// dashboardPage shows the signed-in user's profile.
var dashboardPage = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>FundQuest</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 480px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
  }
  .card h1 {
    font-size: 1.25rem;
    font-weight: 600;
    margin-bottom: 0.25rem;
  }
  p.sub {
    font-size: 0.85rem;
    color: #666;
    margin-bottom: 1.5rem;
  }
  dl {
    display: grid;
    grid-template-columns: auto 1fr;
    gap: 0.4rem 1rem;
    font-size: 0.9rem;
    margin-bottom: 1.5rem;
  }
  dt { font-weight: 500; color: #333; }
  dd { word-break: break-word; }
  button {
    width: 100%;
    padding: 0.6rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    font-size: 0.9rem;
    font-weight: 500;
    cursor: pointer;
    transition: background 0.15s;
  }
  button:hover { background: #333; }
</style>
</head>
<body>
<div class="card">
  <h1>{{if .Profile.Name}}{{.Profile.Name}}{{else}}Dashboard{{end}}</h1>
  <p class="sub">Signed in via Microsoft.</p>
  <dl>
    <dt>Email</dt><dd>{{.Profile.Email}}</dd>
    {{if .Profile.JobTitle}}<dt>Job title</dt><dd>{{.Profile.JobTitle}}</dd>{{end}}
    {{if .Profile.Department}}<dt>Department</dt><dd>{{.Profile.Department}}</dd>{{end}}
    {{if .Profile.LastLogin}}<dt>Last login</dt><dd>{{.Profile.LastLogin}}</dd>{{end}}
    {{if .ExpiresAt}}<dt>Session expires</dt><dd>{{.ExpiresAt}}</dd>{{end}}
  </dl>
  <form method="POST" action="/logout">
    <button type="submit">Sign out</button>
  </form>
</div>
</body>
</html>`))

type dashboardData struct {
	Profile   profileView
	ExpiresAt string
}

// profileView is the subset of the backend profile the dashboard shows.
type profileView struct {
	Name       string
	Email      string
	JobTitle   string
	Department string
	LastLogin  string
}
