package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/ragserve/internal/engine"
	"github.com/dgallion1/ragserve/internal/parser"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

// handleIngest accepts a multipart form carrying exactly one of a `file`
// field (document bytes) or a `text` field (pasted raw text), runs the
// ingestion pipeline, and reports the outcome as `{message}`.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 1MB covers form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonDetail(w, fmt.Sprintf("upload exceeds max size (%d bytes)", s.maxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonDetail(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	text := r.FormValue("text")
	file, header, fileErr := r.FormFile("file")
	hasFile := fileErr == nil

	switch {
	case hasFile && text != "":
		file.Close()
		jsonDetail(w, "provide either a file or text, not both", http.StatusBadRequest)
		return
	case !hasFile && text == "":
		jsonDetail(w, "provide a file or text to ingest", http.StatusBadRequest)
		return
	}

	var (
		summary engine.Summary
		err     error
	)
	if hasFile {
		defer file.Close()
		summary, err = s.ingestFile(r, file, header.Filename)
	} else {
		summary, err = s.ingestor.IngestText(r.Context(), text)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": summary.Message()})
}

func (s *Server) ingestFile(r *http.Request, file io.Reader, rawName string) (engine.Summary, error) {
	filename := sanitizeFilename(rawName)
	if !parser.IsSupportedExtension(filename) {
		return engine.Summary{}, ragerr.New(ragerr.KindUnsupportedFormat,
			"unsupported file type: %s", filepath.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		return engine.Summary{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return engine.Summary{}, ragerr.New(ragerr.KindPayloadTooLarge,
			"file exceeds max size (%d bytes)", s.maxUploadBytes)
	}

	return s.ingestor.IngestFile(r.Context(), filename, data)
}

type chatRequest struct {
	Query string `json:"query"`
}

type chatResponse struct {
	Answer         string            `json:"answer"`
	Citations      []engine.Citation `json:"citations"`
	ProcessingTime float64           `json:"processing_time"`
}

// handleChat answers one query. The response shape is parsed by the browser
// client by field name and must not change.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonDetail(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonDetail(w, "query must not be empty", http.StatusBadRequest)
		return
	}

	turn, err := s.chat.Chat(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := chatResponse{
		Answer:         turn.Answer,
		Citations:      turn.Citations,
		ProcessingTime: turn.ProcessingTime,
	}
	if resp.Citations == nil {
		resp.Citations = []engine.Citation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError maps an engine error to a status code and a `{detail}` body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForKind(ragerr.KindOf(err))
	if status >= 500 {
		s.log.Error("request failed", "error", err)
	}
	jsonDetail(w, err.Error(), status)
}

func statusForKind(kind ragerr.Kind) int {
	switch kind {
	case ragerr.KindInvalidRequest, ragerr.KindEmptyDocument, ragerr.KindUnsupportedFormat:
		return http.StatusBadRequest
	case ragerr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ragerr.KindRetrievalUnavailable:
		return http.StatusServiceUnavailable
	case ragerr.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonDetail(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
