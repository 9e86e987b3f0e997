package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"imagecleanse/logging"
	"imagecleanse/types"
	"imagecleanse/utils"
)

// maxBodyBytes bounds request bodies; a dataset for a large folder is a few MB.
const maxBodyBytes = 64 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	var req DatasetRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.store.Ingest(r.Context(), req.Report())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DatasetResponse{
		Status:          "success",
		Folder:          req.Folder,
		ImagesProcessed: len(req.Images),
		ImagesCreated:   summary.ImagesCreated,
		ImagesUpdated:   summary.ImagesUpdated,
		ImagesUnchanged: summary.ImagesUnchanged,
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	q := types.ImageQuery{
		Paths:    append(listParam(r, "paths"), literalParam(r, "path")...),
		Hashes:   listParam(r, "hashes"),
		GroupIDs: listParam(r, "group_ids"),
	}
	recs, err := s.store.Images(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	resp := MetadataResponse{Images: make([]ImageMetadata, 0, len(recs))}
	for _, rec := range recs {
		resp.Images = append(resp.Images, metadataFromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDuplicatesWrite(w http.ResponseWriter, r *http.Request) {
	var items []MembershipItem
	if !s.decode(w, r, &items) {
		return
	}
	write := types.GroupWrite{
		ReplaceGroups: listParam(r, "replace_groups"),
		Members:       membershipsFromWire(items),
	}
	if raw := r.URL.Query().Get("replace_all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid replace_all %q", raw))
			return
		}
		write.ReplaceAll = all
	}
	for _, raw := range listParam(r, "replace_images") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image id %q", raw))
			return
		}
		write.ReplaceImages = append(write.ReplaceImages, id)
	}

	if err := s.store.ReplaceGroups(r.Context(), write); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "success", Count: len(items)})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	s.listImages(w, r, types.ImageFilter{})
}

func (s *Server) handleBlurred(w http.ResponseWriter, r *http.Request) {
	s.listImages(w, r, types.ImageFilter{Blurry: true})
}

func (s *Server) handleNoFace(w http.ResponseWriter, r *http.Request) {
	s.listImages(w, r, types.ImageFilter{NoFace: true})
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request, filter types.ImageFilter) {
	var err error
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.store.ListImages(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	resp := ImageListResponse{Images: make([]ImageView, 0, len(recs))}
	for _, rec := range recs {
		resp.Images = append(resp.Images, viewFromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if r.URL.Query().Has("group_ids") {
		ids = listParam(r, "group_ids")
	}
	groups, err := s.store.Groups(r.Context(), ids)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if groups == nil {
		groups = []types.DuplicateGroup{}
	}
	s.writeJSON(w, http.StatusOK, DuplicatesResponse{Groups: groups})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.rescanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "rescan requires a running daemon")
		return
	}
	var req RescanRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		rel, err := types.NormalizeRelPath(p)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		paths = append(paths, rel)
	}
	s.rescanner.Trigger(paths)
	s.writeJSON(w, http.StatusAccepted, StatusResponse{Status: "queued", Count: len(paths)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidReport):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrInvalidGroups):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("catalog request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// listParam accepts both repeated and comma-separated values.
func listParam(r *http.Request, key string) []string {
	values := r.URL.Query()[key]
	if len(values) == 0 {
		return nil
	}
	return utils.SplitList(strings.Join(values, ","))
}

// literalParam returns every value of a repeated key as given, for values
// such as file names that may themselves contain commas.
func literalParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func intParam(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}
