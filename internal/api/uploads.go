package api

import (
	"errors"
	"net/http"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to disk.
const multipartMemory = 4 << 20

// handleUpload stages a file for a later media-after-upload send and
// returns its generated name.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		writeBadRequest(w, "multipart/form-data body is required")
		return
	}
	staged, _, ok := s.stageMultipart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "ok",
		"message":  "upload success",
		"filename": staged,
	})
}

// stageMultipart stages the request's file field. It returns the staged
// name and the client's original file name. On failure it writes the
// response and returns false.
func (s *Server) stageMultipart(w http.ResponseWriter, r *http.Request) (staged, original string, ok bool) {
	if !parseMultipart(w, r) {
		return "", "", false
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeMissingParameters, "file is required")
		return "", "", false
	}
	defer file.Close()

	staged, err = s.svc.StageUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("staging upload failed", "error", err)
		writeInternalError(w, "upload failed")
		return "", "", false
	}
	return staged, header.Filename, true
}

// parseMultipart parses the request's multipart body once; later calls
// are no-ops. On failure it writes the response and returns false.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload exceeds the size limit")
			return false
		}
		writeBadRequest(w, "invalid multipart body")
		return false
	}
	return true
}
