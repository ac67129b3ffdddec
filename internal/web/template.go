package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/pedal-decoder/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"relay": status.RelayString,
	"virtual": func(i, physical int) bool {
		return i >= physical
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Pedal Decoder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.down { color: green; font-weight: bold; }
.up { color: #888; }
.high { color: green; font-weight: bold; }
.low { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pedal Decoder</h1>

<h2>Pedals</h2>
<table>
<tr><th>Count</th><td id="pedal-count">{{.PedalCount}} ({{.PhysicalCount}} physical, {{.VirtualCount}} virtual)</td></tr>
<tr><th>Pattern</th><td id="pedal-pattern">{{if .PedalCount}}{{.Pattern}}{{else}}none{{end}}</td></tr>
{{range $i, $s := .PedalStates}}<tr><th>Pedal {{$i}}{{if virtual $i $.PhysicalCount}} (virtual){{end}}</th><td class="{{if $s}}down{{else}}up{{end}}">{{if $s}}pressed{{else}}released{{end}}</td></tr>
{{end}}</table>

<h2>Relay</h2>
<table>
<tr><th>Level</th><td id="relay" class="{{if .Relay}}high{{else}}low{{end}}">{{relay .Relay}}</td></tr>
</table>
{{if .CanToggle}}<form method="post" action="/relay/toggle"><button type="submit">Toggle relay</button></form>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if or .MQTTBuffered .MQTTDropped}}<tr><th>Buffered</th><td id="mqtt-buffered">{{.MQTTBuffered}} waiting, {{.MQTTDropped}} dropped</td></tr>{{end}}
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Count changed</th><td>{{.Counts.CountChanged}}</td></tr>
<tr><th>Pedal changed</th><td>{{.Counts.PedalChanged}}</td></tr>
<tr><th>Relay toggles</th><td>{{.Counts.RelayToggles}}</td></tr>
{{if not .LastEvent.IsZero}}<tr><th>Last event</th><td>{{.LastEvent.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Bit order</th><td>{{.Config.BitOrder}}</td></tr>
<tr><th>Quarter period</th><td>{{.Config.QuarterPeriodMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, canToggle bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		CanToggle bool
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		CanToggle: canToggle,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
