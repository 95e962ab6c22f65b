package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/wa-gateway/internal/dispatch"
	"github.com/nerrad567/wa-gateway/internal/media"
)

// uploadFormField is the multipart field carrying the file.
const uploadFormField = "file"

// sendRequest is the body of the message endpoints. JSON and
// form-encoded bodies are both accepted.
type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	MediaURL    string `json:"media_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// sendResponse echoes a successful send.
type sendResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  dispatch.Result `json:"result"`
}

// handleSendText sends a text message.
func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSend(w, r)
	if !ok {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "message is required")
		return
	}

	res, err := s.svc.SendText(r.Context(), chi.URLParam(r, "tenantID"), req.PhoneNumber, req.Message)
	s.writeSendResult(w, res, err)
}

// handleSendMedia downloads media_url and sends it with an optional caption.
func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSend(w, r)
	if !ok {
		return
	}
	if req.MediaURL == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "media_url is required")
		return
	}

	att := dispatch.Attachment{
		Source: req.MediaURL,
		Name:   media.NameFromURL(req.MediaURL),
		Kind:   mediaKind(req.Kind),
	}
	res, err := s.svc.SendMedia(r.Context(), chi.URLParam(r, "tenantID"), req.PhoneNumber, att, req.Message)
	s.writeSendResult(w, res, err)
}

// handleSendMediaUpload stages a multipart file and sends it in one call.
func (s *Server) handleSendMediaUpload(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		writeBadRequest(w, "multipart/form-data body is required")
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	// Fields are checked before the file is staged so a rejected request
	// leaves nothing in the temp root.
	phone, ok := s.recipientField(w, r.FormValue("phone_number"))
	if !ok {
		return
	}
	kind := mediaKind(r.FormValue("kind"))
	if _, err := dispatch.ValidateMedia(phone, dispatch.Attachment{Source: uploadFormField, Kind: kind}); err != nil {
		writeServiceError(w, err)
		return
	}

	staged, original, ok := s.stageMultipart(w, r)
	if !ok {
		return
	}
	att := dispatch.Attachment{
		Source: staged,
		Name:   original,
		Kind:   kind,
	}
	res, err := s.svc.SendMediaFromUpload(r.Context(), chi.URLParam(r, "tenantID"), phone, att, r.FormValue("message"))
	s.writeSendResult(w, res, err)
}

// handleSendMediaAfterUpload sends a file staged earlier via POST /uploads.
func (s *Server) handleSendMediaAfterUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSend(w, r)
	if !ok {
		return
	}
	if req.FileName == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "file_name is required")
		return
	}

	att := dispatch.Attachment{
		Source: req.FileName,
		Name:   req.FileName,
		Kind:   mediaKind(req.Kind),
	}
	res, err := s.svc.SendMediaFromUpload(r.Context(), chi.URLParam(r, "tenantID"), req.PhoneNumber, att, req.Message)
	s.writeSendResult(w, res, err)
}

// decodeSend reads a sendRequest and normalizes its phone number. On
// failure it writes the response and returns false.
func (s *Server) decodeSend(w http.ResponseWriter, r *http.Request) (sendRequest, bool) {
	var req sendRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeBadRequest(w, "invalid form body")
			return req, false
		}
		req = sendRequest{
			PhoneNumber: r.PostFormValue("phone_number"),
			Message:     r.PostFormValue("message"),
			MediaURL:    r.PostFormValue("media_url"),
			FileName:    r.PostFormValue("file_name"),
			Kind:        r.PostFormValue("kind"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return req, false
		}
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}

	phone, ok := s.recipientField(w, req.PhoneNumber)
	if !ok {
		return req, false
	}
	req.PhoneNumber = phone
	return req, true
}

// recipientField validates and normalizes the phone_number field.
func (s *Server) recipientField(w http.ResponseWriter, raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "phone_number is required")
		return "", false
	}
	phone, ok := s.normalizePhone(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRecipient, "invalid phone number")
		return "", false
	}
	return phone, true
}

func (s *Server) writeSendResult(w http.ResponseWriter, res dispatch.Result, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		Status:  "ok",
		Message: "success",
		Result:  res,
	})
}

// mediaKind maps the optional kind field; an empty kind is a photo.
func mediaKind(kind string) dispatch.MediaKind {
	if kind == "" {
		return dispatch.KindPhoto
	}
	return dispatch.MediaKind(strings.ToLower(kind))
}
