package html

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 2em; color: #222; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 2em; }
        th { background: #1f4e78; color: #fff; text-align: left; padding: 6px; }
        td { border-bottom: 1px solid #ddd; padding: 6px; vertical-align: top; }
        .deficient { color: #9c0006; background: #ffc7ce; font-weight: bold; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <p>Generated {{.GeneratedDate}} at {{.GeneratedTime}}</p>
    <table>
        <tr><td>Recipient</td><td>{{.ProjectName}}</td></tr>
        <tr><td>Project ID</td><td>{{.ProjectID}}</td></tr>
        <tr><td>Report ID</td><td>{{.JobID}}</td></tr>
        <tr><td>Controls Assessed</td><td>{{.TotalControls}}</td></tr>
        <tr><td>Unmatched Controls</td><td>{{.Unmatched}}</td></tr>
        <tr><td>Deficiencies</td><td>{{.Summary.DeficiencyCount}}</td></tr>
    </table>

    <h2>Review Areas</h2>
    <table>
        <tr><th>Review Area</th><th>Finding</th><th>Controls</th></tr>
        {{- range .Areas}}
        <tr><td>{{.Area}}</td><td{{if eq .Finding "Deficient"}} class="deficient"{{end}}>{{.Finding}}</td><td>{{.ControlCount}}</td></tr>
        {{- end}}
    </table>
    {{- if .DraftAudit}}

    <h2>Deficiencies</h2>
    <table>
        <tr><th>Review Area</th><th>Control</th><th>Description</th></tr>
        {{- range $area := .Areas}}{{range .Deficiencies}}
        <tr><td>{{$area.Area}}</td><td>{{.Control}}</td><td>{{.Comment}}</td></tr>
        {{- end}}{{end}}
    </table>
    {{- end}}
</body>
</html>
`
