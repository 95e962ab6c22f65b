package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

// qrImageSize is the edge length in pixels of rendered pairing codes.
const qrImageSize = 256

// qrCodeResponse carries the pairing code as a PNG data URL.
type qrCodeResponse struct {
	QRBase64  string    `json:"qrbase64"`
	Timestamp time.Time `json:"timestamp"`
	ClientID  string    `json:"clientid"`
}

// handleQRCode returns the tenant's current pairing code rendered as a QR
// image, or a connected status when no pairing is needed.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	st, err := s.svc.PairingArtifact(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if st.Connected {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "connected"})
		return
	}

	dataURL, err := qrDataURL(st.Artifact.Payload)
	if err != nil {
		s.logger.Error("rendering pairing code failed", "tenant_id", tenantID, "error", err)
		writeInternalError(w, "failed to get qr code")
		return
	}

	writeJSON(w, http.StatusOK, qrCodeResponse{
		QRBase64:  dataURL,
		Timestamp: st.Artifact.UpdatedAt.UTC(),
		ClientID:  tenantID,
	})
}

// qrDataURL encodes payload as a PNG QR code data URL.
func qrDataURL(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
