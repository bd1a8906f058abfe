// File management for the Moonraker-compatible API.
// G-code uploads are post-processed before they are stored.
package moonraker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"adaptive-mesh/pkg/adaptivemesh"
	hosterrors "adaptive-mesh/pkg/errors"
	"adaptive-mesh/pkg/gcode"
	"adaptive-mesh/pkg/log"
	"adaptive-mesh/pkg/metrics"
	"adaptive-mesh/pkg/pool"
)

// RootGCodes is the only file root served.
const RootGCodes = "gcodes"

// metadataHeaderSize is how much of a file is read for slicer metadata.
const metadataHeaderSize = 64 * 1024

// ErrPathTraversal is returned for paths escaping their root.
var ErrPathTraversal = errors.New("path traversal detected")

// FileManager manages the files under the configured roots.
type FileManager struct {
	// root name -> absolute path
	roots map[string]string
}

// FileItem is one entry of a file listing.
type FileItem struct {
	Path        string  `json:"path"`
	Modified    float64 `json:"modified"`
	Size        int64   `json:"size"`
	Permissions string  `json:"permissions"`
}

// FileMetadata holds metadata for a G-code file.
type FileMetadata struct {
	Filename    string  `json:"filename"`
	Modified    float64 `json:"modified"`
	Size        int64   `json:"size"`
	Permissions string  `json:"permissions"`
	Compression string  `json:"compression,omitempty"`

	Slicer           string   `json:"slicer,omitempty"`
	SlicerVersion    string   `json:"slicer_version,omitempty"`
	LayerHeight      *float64 `json:"layer_height,omitempty"`
	FirstLayerHeight *float64 `json:"first_layer_height,omitempty"`
	LayerCount       *int     `json:"layer_count,omitempty"`

	// MeshCommand is the probe command found in the file header, if the
	// file was post-processed.
	MeshCommand string `json:"mesh_command,omitempty"`
	MeshBounds  string `json:"mesh_bounds,omitempty"`
}

// NewFileManager creates a file manager with no roots.
func NewFileManager() *FileManager {
	return &FileManager{roots: make(map[string]string)}
}

// SetRoot sets the directory of a root, creating it if needed.
func (fm *FileManager) SetRoot(name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid root %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", abs, err)
	}
	fm.roots[name] = abs
	return nil
}

// GetRoot returns the directory of a root.
func (fm *FileManager) GetRoot(name string) (string, error) {
	root, ok := fm.roots[name]
	if !ok {
		return "", fmt.Errorf("unknown root: %s", name)
	}
	return root, nil
}

// Roots returns the configured root names, sorted.
func (fm *FileManager) Roots() []string {
	names := make([]string, 0, len(fm.roots))
	for name := range fm.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve maps a root-relative path to a file system path inside the root.
func (fm *FileManager) resolve(root, path string) (string, error) {
	rootPath, err := fm.GetRoot(root)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	full := filepath.Join(rootPath, filepath.FromSlash(path))
	rel, err := filepath.Rel(rootPath, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	return full, nil
}

func modTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// ListFiles lists every file below a root, sorted by path. Hidden files,
// which include in-progress uploads, are skipped.
func (fm *FileManager) ListFiles(root string) ([]FileItem, error) {
	rootPath, err := fm.GetRoot(root)
	if err != nil {
		return nil, err
	}

	files := []FileItem{}
	err = filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != rootPath {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(rootPath, p)
		if err != nil {
			return err
		}
		files = append(files, FileItem{
			Path:        filepath.ToSlash(rel),
			Modified:    modTime(info.ModTime()),
			Size:        info.Size(),
			Permissions: "rw",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// GetFileMetadata returns metadata for a file.
func (fm *FileManager) GetFileMetadata(root, path string) (*FileMetadata, error) {
	fullPath, err := fm.resolve(root, path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	meta := &FileMetadata{
		Filename:    path,
		Modified:    modTime(info.ModTime()),
		Size:        info.Size(),
		Permissions: "rw",
	}
	if gcode.IsGCode(path) {
		fm.parseGCodeMetadata(fullPath, meta)
	}
	return meta, nil
}

// parseGCodeMetadata extracts metadata from a G-code file header.
func (fm *FileManager) parseGCodeMetadata(path string, meta *FileMetadata) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	rc, comp, err := gcode.NewReader(file)
	if err != nil {
		return
	}
	defer rc.Close()
	if comp != gcode.None {
		meta.Compression = comp.String()
	}

	scanner := bufio.NewScanner(io.LimitReader(rc, metadataHeaderSize))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "M557 ") {
			if meta.MeshCommand == "" {
				meta.MeshCommand = line
			}
			continue
		}
		if bounds, ok := strings.CutPrefix(line, adaptivemesh.DiagnosticPrefix); ok {
			meta.MeshBounds = strings.TrimSpace(bounds)
			continue
		}
		if !strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, ";"))

		switch {
		// PrusaSlicer/SuperSlicer style
		case strings.HasPrefix(line, "generated by "):
			parts := strings.SplitN(line, " ", 4)
			if len(parts) >= 3 {
				meta.Slicer = parts[2]
			}
			if len(parts) >= 4 {
				meta.SlicerVersion = strings.TrimPrefix(parts[3], "on ")
			}
		// Cura style
		case strings.HasPrefix(line, "FLAVOR:"):
			if meta.Slicer == "" {
				meta.Slicer = "Cura"
			}
		case strings.HasPrefix(line, "Generated with Cura_SteamEngine "):
			meta.Slicer = "Cura"
			meta.SlicerVersion = strings.TrimPrefix(line, "Generated with Cura_SteamEngine ")
		case strings.HasPrefix(line, "LAYER_COUNT:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "LAYER_COUNT:")); err == nil {
				meta.LayerCount = &n
			}
		case strings.HasPrefix(line, "Layer height:"):
			if h, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Layer height:")), 64); err == nil {
				meta.LayerHeight = &h
			}
		case strings.HasPrefix(line, "first_layer_height"):
			var height float64
			if _, err := fmt.Sscanf(line, "first_layer_height = %f", &height); err == nil {
				meta.FirstLayerHeight = &height
			}
		case strings.HasPrefix(line, "layer_height"):
			var height float64
			if _, err := fmt.Sscanf(line, "layer_height = %f", &height); err == nil {
				meta.LayerHeight = &height
			}
		}
	}
}

// SaveFile stores the contents of r at path below root. The file is
// written to a hidden temporary file first and renamed into place.
func (fm *FileManager) SaveFile(root, path string, r io.Reader) (*FileMetadata, error) {
	fullPath, err := fm.resolve(root, path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return fm.GetFileMetadata(root, path)
}

// DeleteFile deletes a file.
func (fm *FileManager) DeleteFile(root, path string) error {
	fullPath, err := fm.resolve(root, path)
	if err != nil {
		return err
	}
	return os.Remove(fullPath)
}

// File endpoints

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	if root == "" {
		root = RootGCodes
	}
	files, err := s.files.ListFiles(root)
	if err != nil {
		s.writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]any{"result": files})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("filename")
	if path == "" {
		s.writeJSONError(w, fmt.Errorf("missing filename parameter"), http.StatusBadRequest)
		return
	}
	meta, err := s.files.GetFileMetadata(RootGCodes, path)
	if err != nil {
		s.writeJSONError(w, err, statusFor(err))
		return
	}
	s.writeJSON(w, map[string]any{"result": meta})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		s.writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	defer file.Close()

	root := r.FormValue("root")
	if root == "" {
		root = RootGCodes
	}
	path := header.Filename
	if dir := strings.Trim(r.FormValue("path"), "/"); dir != "" {
		path = dir + "/" + header.Filename
	}

	meta, err := s.storeUpload(r, root, path, file)
	if err != nil {
		s.writeJSONError(w, err, statusFor(err))
		return
	}

	s.metrics.UploadsTotal.Inc(metrics.Labels{"root": root})
	item := map[string]any{
		"path":        path,
		"root":        root,
		"modified":    meta.Modified,
		"size":        meta.Size,
		"permissions": meta.Permissions,
	}
	s.notifyFileListChanged("create_file", item)
	s.writeJSON(w, map[string]any{
		"result": map[string]any{
			"item":          item,
			"action":        "create_file",
			"print_started": false,
		},
	})
}

// storeUpload writes an uploaded file, running G-code through the
// processor first.
func (s *Server) storeUpload(r *http.Request, root, path string, file io.Reader) (*FileMetadata, error) {
	if root != RootGCodes {
		return nil, hosterrors.UploadError(path, "unsupported root "+root)
	}
	if !gcode.IsGCode(path) {
		return s.files.SaveFile(root, path, file)
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	rep, err := s.processor.Process(r.Context(), path, file, buf)
	if err != nil {
		return nil, err
	}
	meta, err := s.files.SaveFile(root, path, buf)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"file":   path,
		"result": rep.Result(),
	}).Debug("upload stored")
	return meta, nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	// /server/files/{root}/{path...}
	urlPath := strings.TrimPrefix(r.URL.Path, "/server/files/")
	root, path, ok := strings.Cut(urlPath, "/")
	if !ok || path == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		fullPath, err := s.files.resolve(root, path)
		if err != nil {
			s.writeJSONError(w, err, http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, fullPath)

	case http.MethodDelete:
		if err := s.files.DeleteFile(root, path); err != nil {
			s.writeJSONError(w, err, statusFor(err))
			return
		}
		item := map[string]any{"path": path, "root": root}
		s.notifyFileListChanged("delete_file", item)
		s.writeJSON(w, map[string]any{
			"result": map[string]any{
				"item":   item,
				"action": "delete_file",
			},
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// notifyFileListChanged pushes a file list change to all websocket clients.
func (s *Server) notifyFileListChanged(action string, item map[string]any) {
	s.broadcast("notify_filelist_changed", []any{map[string]any{
		"action": action,
		"item":   item,
	}})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case hosterrors.Is(err, hosterrors.ErrGCodeWrite),
		hosterrors.Is(err, hosterrors.ErrHistory):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
