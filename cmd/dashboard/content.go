package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// contentExtensions are the media types shown on the board.
var contentExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".mp4":  true,
	".webm": true,
}

// ContentFile describes one media file. Modified is Unix seconds.
type ContentFile struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

func (s *Server) contentDir() string {
	return s.current().cfg.Content.Dir
}

// listContent returns the media files directly inside dir, sorted by name.
// A missing directory has no content.
func listContent(dir string) ([]ContentFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []ContentFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := []ContentFile{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !contentExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed while listing.
			continue
		}
		files = append(files, ContentFile{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / 1e9,
		})
	}
	return files, nil
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	files, err := listContent(s.contentDir())
	if err != nil {
		s.logger.Error("Content listing failed", slog.Any("error", err))
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   files,
	})
}

// handleDeleteContent removes one file from the content directory. Names
// that would reach outside it are treated as missing.
func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	notFound := map[string]interface{}{"success": false, "message": "File not found"}

	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		respondJSON(w, http.StatusNotFound, notFound)
		return
	}
	path := filepath.Join(s.contentDir(), name)
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		respondJSON(w, http.StatusNotFound, notFound)
		return
	}

	if err := os.Remove(path); err != nil {
		s.logger.Error("Content delete failed", slog.String("file", name), slog.Any("error", err))
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	s.logger.Info("Content deleted", slog.String("file", name))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Deleted " + name,
	})
}

// handleServeContent serves media files. Directory listings are not served.
func (s *Server) handleServeContent(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/") {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	fileServer := http.FileServer(http.Dir(s.contentDir()))
	http.StripPrefix("/content", fileServer).ServeHTTP(w, r)
}
