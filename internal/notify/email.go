package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/vodalab/vzorec/internal/model"
)

var submissionTmpl = template.Must(template.New("submission").Parse(`<html>
<body>
<h2>Sample submitted to lab</h2>
<p>Sample <strong>{{.Sample.ID}}</strong> has been submitted for intake.</p>
<table border="1" cellpadding="4" cellspacing="0">
  <tr><td>Agency</td><td>{{.Sample.AgencyID}}</td></tr>
  <tr><td>Status</td><td>{{.Sample.Status}}</td></tr>
  <tr><td>Collected</td><td>{{.Sample.CollectedAt.Format "2006-01-02 15:04 MST"}}</td></tr>
</table>
<h3>Chain of custody</h3>
<table border="1" cellpadding="4" cellspacing="0">
  <tr><th>Transferred by</th><th>Received by</th><th>When</th><th>Photo</th></tr>
  {{range .Transfers}}
  <tr>
    <td>{{.TransferredBy}}</td>
    <td>{{.ReceivedBy}}</td>
    <td>{{.TransferredAt.Format "2006-01-02 15:04 MST"}}</td>
    <td>{{if .PhotoURL}}<a href="{{.PhotoURL}}">photo</a>{{else}}&mdash;{{end}}</td>
  </tr>
  {{end}}
</table>
</body>
</html>`))

// RenderSubmission builds the per-sample notification sent to the lab admin
// when a transfer lands the sample in 'submitted'.
func RenderSubmission(sample *model.Sample, transfers []model.CustodyTransfer) (subject, html string, err error) {
	var b strings.Builder
	data := struct {
		Sample    *model.Sample
		Transfers []model.CustodyTransfer
	}{sample, transfers}

	if err := submissionTmpl.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("rendering submission email: %w", err)
	}

	subject = fmt.Sprintf("Sample %s submitted for lab intake", sample.ID)
	return subject, b.String(), nil
}
