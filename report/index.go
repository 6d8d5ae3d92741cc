package report

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/history"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>wat</title>
<style>
body{font-family:sans-serif;margin:2em}
table{border-collapse:collapse}
td,th{padding:.3em .8em;border-bottom:1px solid #ddd;text-align:left;vertical-align:top}
.failed,.changed,.dimension-mismatch,.error{color:#b00}
.missing-reference{color:#a60}
img{border:1px solid #ccc}
</style></head><body>
<h1>wat</h1>
{{with .Detail}}
<h2>Run {{.Run.ID}} <span class="{{.Run.Status}}">{{.Run.Status}}</span></h2>
<p>{{.Run.AppURL}} started {{.Run.StartedAt.Format "2006-01-02 15:04:05"}}</p>
<table><tr><th>scenario</th><th>result</th><th>step</th><th>actor</th><th>error</th></tr>
{{range .Scenarios}}<tr><td>{{.Scenario}}</td><td class="{{if .Passed}}passed{{else}}failed{{end}}">{{if .Passed}}passed{{else}}failed{{end}}</td><td>{{.StepID}}</td><td>{{.Actor}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
{{if .Diffs}}<h3>Screenshots</h3>
<table><tr><th>capture</th><th>status</th><th>mismatched</th><th>latest</th><th>reference</th><th>diff</th></tr>
{{range .Diffs}}<tr><td>{{.Actor}}/{{.Tag}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{.Mismatched}}</td>
<td><a href="/img/latest/{{.Actor}}/{{.Tag}}"><img src="/thumb/latest/{{.Actor}}/{{.Tag}}" alt=""></a></td>
<td>{{if ne .Status "missing-reference"}}<a href="/img/reference/{{.Actor}}/{{.Tag}}"><img src="/thumb/reference/{{.Actor}}/{{.Tag}}" alt=""></a>{{end}}</td>
<td>{{if .DiffPath}}<a href="/img/diff/{{.Actor}}/{{.Tag}}"><img src="/thumb/diff/{{.Actor}}/{{.Tag}}" alt=""></a>{{end}}</td></tr>
{{end}}</table>{{end}}
{{else}}
<p>No recorded run.</p>
{{if .Latest}}<h3>Latest captures</h3>
<table>{{range .Latest}}<tr><td>{{.Actor}}/{{.Tag}}</td><td><a href="/img/latest/{{.Actor}}/{{.Tag}}"><img src="/thumb/latest/{{.Actor}}/{{.Tag}}" alt=""></a></td></tr>
{{end}}</table>{{end}}
{{end}}
{{if .Runs}}<h3>History</h3>
<table>{{range .Runs}}<tr><td><a href="/api/runs/{{.ID}}">{{.ID}}</a></td><td class="{{.Status}}">{{.Status}}</td><td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td></tr>
{{end}}</table>{{end}}
</body></html>
`))

type indexData struct {
	Detail *history.Detail
	Runs   []history.Run
	Latest []capture.Artifact
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var data indexData
	if s.History != nil {
		d, err := s.History.Latest(r.Context())
		switch {
		case err == nil:
			data.Detail = &d
		case !errors.Is(err, history.ErrNotFound):
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if data.Runs, err = s.History.Runs(r.Context(), 20); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if data.Detail == nil {
		arts, err := s.Store.List(capture.Latest)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		data.Latest = arts
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger().Error("report: render index", "error", err)
	}
}
