package api

import (
	"io"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rumble/internal/httputil"
)

const registersFormHTML = `<!DOCTYPE html>
<html>
<head><title>Device Registers</title></head>
<body>
<h1>Device Registers</h1>
<p>Raw register access for hardware bring-up. Values move the motors.</p>
<form action="registers-api" method="get">
  <label>Register <input name="name" placeholder="DIO5"></label>
  <button>Read</button>
</form>
<form action="registers-api" method="post">
  <label>Register <input name="name" placeholder="DIO5"></label>
  <label>Value <input name="value" placeholder="1"></label>
  <button>Write</button>
</form>
</body>
</html>
`

// AttachDebugRoutes exposes raw register peek/poke on the debug pages.
// Writes bypass the motor bookkeeping entirely, so this is strictly a
// bring-up tool.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("registers", "Read and write raw device registers", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, registersFormHTML)
	})

	debug.HandleSilentFunc("registers-api", func(w http.ResponseWriter, r *http.Request) {
		name := r.FormValue("name")
		if name == "" {
			httputil.BadRequest(w, "missing register name")
			return
		}

		switch r.Method {
		case http.MethodGet:
			value, err := s.rig.Device().ReadName(r.Context(), name)
			if err != nil {
				s.writeError(w, err)
				return
			}
			httputil.WriteJSONOK(w, map[string]interface{}{"name": name, "value": value})
		case http.MethodPost:
			value, err := strconv.ParseFloat(r.FormValue("value"), 64)
			if err != nil {
				httputil.BadRequest(w, "invalid register value")
				return
			}
			if err := s.rig.Device().WriteName(r.Context(), name, value); err != nil {
				s.writeError(w, err)
				return
			}
			httputil.WriteJSONOK(w, map[string]interface{}{"name": name, "value": value})
		default:
			httputil.MethodNotAllowed(w)
		}
	})
}
