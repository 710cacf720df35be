package api

import (
	"html/template"
	"net/http"
	"strings"
)

type resultPage struct {
	OK            bool
	Lang          string
	Title         string
	Body          string
	Note          string
	TxLabel       string
	TransactionID string
	HomeLabel     string
}

var page = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{.Title}}</h2>
  <p>{{.Body}}</p>
  {{if .Note}}<p class="small">{{.Note}}</p>{{end}}
  {{if .TransactionID}}<p class="small">{{.TxLabel}}: {{.TransactionID}}</p>{{end}}
  <a class="btn" href="/">{{.HomeLabel}}</a>
</div>
</body>
</html>`))

func renderPage(w http.ResponseWriter, code int, p resultPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, p)
}

// pageLang reads ?lang=, then the first Accept-Language tag.
func pageLang(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return l
	}
	al := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(al, ",;"); i >= 0 {
		al = al[:i]
	}
	return al
}
