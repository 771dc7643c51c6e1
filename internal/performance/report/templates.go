package report

// htmlTemplate is the report page. It is self-contained: no scripts and
// no external assets.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{if .Name}}{{.Name}}{{else}}prload run{{end}} - Load Test Report</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --pass: #16a34a;
            --fail: #dc2626;
            --warn: #d97706;
        }
        body { margin: 0; padding: 2rem; background: var(--bg); color: var(--text);
               font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; }
        .container { max-width: 1100px; margin: 0 auto; }
        header { display: flex; justify-content: space-between; align-items: center; }
        .meta { color: var(--muted); font-size: 0.9rem; }
        .status { padding: 0.5rem 1rem; border-radius: 6px; font-weight: 700; color: #fff; }
        .status.pass { background: var(--pass); }
        .status.fail { background: var(--fail); }
        section { background: var(--card); border: 1px solid var(--border); border-radius: 8px;
                  padding: 1rem 1.5rem; margin-top: 1.5rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 600; }
        td.sub { padding-left: 1.8rem; color: var(--muted); }
        .pass { color: var(--pass); }
        .fail { color: var(--fail); }
        .warn { color: var(--warn); }
        code { font-size: 0.85rem; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <div>
            <h1>{{if .Name}}{{.Name}}{{else}}prload run{{end}}</h1>
            {{if .Description}}<p>{{.Description}}</p>{{end}}
            <div class="meta">
                run <code>{{.RunID}}</code> against <code>{{.BaseURL}}</code>,
                started {{.StartTime.Format "2006-01-02 15:04:05"}}, took {{formatDuration .Duration}},
                max {{.MaxVUs}} VUs
            </div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}</div>
    </header>

    {{if .Aborted}}<section class="warn">Aborted: {{.AbortReason}}</section>{{end}}
    {{if .Error}}<section class="fail">Error: {{.Error}}</section>{{end}}

    {{if .Thresholds}}
    <section>
        <h2>Thresholds</h2>
        <table>
            <tr><th></th><th>Metric</th><th>Expression</th><th>Observed</th><th>Reason</th></tr>
            {{range .Thresholds}}
            <tr>
                <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</td>
                <td><code>{{.Metric}}</code></td>
                <td><code>{{.Expression}}</code>{{if .AbortOnFail}} (abortOnFail){{end}}</td>
                <td>{{.Value}}</td>
                <td>{{.Reason}}</td>
            </tr>
            {{end}}
        </table>
    </section>
    {{end}}

    <section>
        <h2>Scenarios</h2>
        <table>
            <tr><th>Name</th><th>Executor</th><th>Workflow</th><th>Start</th><th>Iterations</th><th>VUs spawned</th><th>Interrupted</th></tr>
            {{range .Scenarios}}
            <tr>
                <td>{{.Name}}</td>
                <td>{{.Executor}}</td>
                <td>{{.Workflow}}</td>
                <td>{{formatDuration .StartOffset}}</td>
                {{if .Stats}}
                <td>{{formatNumber .Stats.Iterations}}</td>
                <td>{{.Stats.SpawnedVUs}}</td>
                <td>{{.Stats.Interrupted}}</td>
                {{else}}
                <td colspan="3" class="meta">not started</td>
                {{end}}
            </tr>
            {{if .Error}}<tr><td colspan="7" class="fail">{{.Error}}</td></tr>{{end}}
            {{end}}
        </table>
    </section>

    <section>
        <h2>Metrics</h2>
        <table>
            <tr><th>Metric</th><th>Kind</th><th>Value</th></tr>
            {{range .Groups}}
            <tr><td><code>{{.Root.Name}}</code></td><td>{{.Root.Kind}}</td><td>{{metricValue .Root}}</td></tr>
            {{range .Subs}}
            <tr><td class="sub"><code>{{.Name}}</code></td><td>{{.Kind}}</td><td>{{metricValue .}}</td></tr>
            {{end}}
            {{end}}
        </table>
    </section>
</div>
</body>
</html>
`
