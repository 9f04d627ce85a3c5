package api

import (
	"errors"
	"io"
	"net"
	"net/http"

	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/submission"
)

// maxBodyBytes bounds a submission body.
const maxBodyBytes = 64 << 10

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	sub, err := submission.Decode(body)
	if err != nil {
		badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	origin := ingest.Origin{
		Transport:  ingest.TransportHTTP,
		RemoteIP:   remoteIP(r),
		MACAddress: sideChannel(r, headerMACAddress),
		DeviceName: sideChannel(r, headerDeviceName),
	}

	receipt, err := h.ingester.Submit(r.Context(), sub, origin)
	if err != nil {
		var validationErr *ingest.ValidationError
		if errors.As(err, &validationErr) {
			badRequest(w, "Invalid request body: "+validationErr.Error())
			return
		}
		badRequest(w, "Error saving measurement: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, receipt.Message)
}

// remoteIP strips the port from the peer address. Forwarding headers are
// client controlled and never consulted.
func remoteIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
