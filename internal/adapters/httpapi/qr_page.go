package httpapi

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/larriantoniy/im_relay/internal/adapters/qrcode"
	"github.com/larriantoniy/im_relay/internal/domain"
)

var qrPage = template.Must(template.New("qr").Parse(`<!DOCTYPE html>
<html>
<head>
<title>IM Relay - {{.Title}}</title>
{{if .Refresh}}<meta http-equiv="refresh" content="5">{{end}}
<style>
body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; background: #f5f5f5; }
.container { max-width: 500px; margin: 0 auto; padding: 20px; background: white; border-radius: 10px; }
.status { font-size: 18px; margin-bottom: 20px; }
.ok { color: green; } .wait { color: orange; } .fail { color: red; }
.debug { background: #f5f5f5; padding: 10px; margin: 20px 0; border-radius: 5px; font-family: monospace; text-align: left; }
</style>
</head>
<body>
<div class="container">
{{if .Ready}}
  <h1>Relay</h1>
  <div class="status ok">Already authenticated</div>
  <p>The session is connected and ready to use.</p>
  <p><strong>Send messages:</strong> POST /send</p>
  <p><strong>Status:</strong> GET /status</p>
{{else if .QR}}
  <h1>Link a device</h1>
  <div class="status wait">Waiting for QR code scan</div>
  <img src="{{.QR}}" alt="QR code" style="max-width: 300px;">
  <ol style="text-align: left; display: inline-block;">
    <li>Open the messenger on your phone</li>
    <li>Go to Settings &gt; Linked Devices</li>
    <li>Tap "Link a Device"</li>
    <li>Scan this QR code</li>
  </ol>
  <p><small>Page refreshes every 5 seconds</small></p>
{{else}}
  <h1>Relay</h1>
  <div class="status {{if .Failed}}fail{{else}}wait{{end}}">{{.Message}}</div>
  <div class="debug">
    Status: {{.Status}}<br>
    Client ready: false<br>
    {{if .Error}}Error: {{.Error}}<br>{{end}}
    Timestamp: {{.Timestamp}}
  </div>
  {{if .Refresh}}<p><small>Page will refresh automatically every 5 seconds</small></p>{{end}}
{{end}}
</div>
</body>
</html>
`))

type qrView struct {
	Title     string
	Refresh   bool
	Ready     bool
	QR        template.URL
	Failed    bool
	Message   string
	Status    string
	Error     string
	Timestamp string
}

var statusMessages = map[domain.Status]string{
	domain.StatusInitializing:  "Initializing client...",
	domain.StatusAuthenticated: "Authenticated, finishing startup...",
	domain.StatusReady:         "Connected, finishing startup...",
	domain.StatusDisconnected:  "Disconnected, waiting for re-authentication...",
	domain.StatusAuthFailed:    "Authentication failed, check logs",
	domain.StatusTimedOut:      "Initialization timed out, restart required",
	domain.StatusErrored:       "Client error occurred, check logs",
}

func (s *Server) handleQRPage(c *gin.Context) {
	snap, ready := s.ready.Check()
	view := qrView{
		Title:     snap.Status.String(),
		Refresh:   !snap.Status.Terminal() && !ready,
		Ready:     ready,
		Failed:    snap.Status.Terminal(),
		Message:   statusMessages[snap.Status],
		Status:    snap.Status.String(),
		Error:     snap.ErrorDetail,
		Timestamp: s.now(),
	}

	if snap.HasQR() {
		uri, err := qrcode.DataURI(snap.QRPayload, 8)
		if err != nil {
			s.log.Error("render qr", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
			return
		}
		// data: URI безопасен, он собран нами из PNG
		view.QR = template.URL(uri)
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := qrPage.Execute(c.Writer, view); err != nil {
		s.log.Error("render qr page", "error", err)
	}
}
