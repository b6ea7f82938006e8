package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vcsforge/gitcore/gitlog"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/storage/pack"
	"github.com/vcsforge/gitcore/transport"
	"github.com/vcsforge/gitcore/transport/pktline"
)

// Repository is everything one repository's smart-HTTP handlers need: the
// object backend, its ref lister/writer, and an object store that can also
// accept pushed objects.
type Repository struct {
	Backend object.Backend
	Objects transport.ObjectPutter
	Refs    interface {
		transport.RefLister
		transport.RefStore
	}
}

// RepoResolver looks up a repository by the URL path segment naming it.
type RepoResolver func(name string) (*Repository, error)

// Server routes the smart-HTTP upload-pack/receive-pack endpoints onto a
// RepoResolver, gating push access (and, optionally, fetch) behind an
// AuthProvider bearer token.
type Server struct {
	Resolve             RepoResolver
	Auth                *AuthProvider
	RequireAuthForFetch bool
	Limits              transport.Limits
	WriteOpts           pack.WriteOptions
	Caps                transport.CapList
}

// Router builds the mux.Router serving this Server's three endpoints,
// mirroring git's own smart-HTTP layout.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{repo:.+}/info/refs", s.handleInfoRefs).Methods(http.MethodGet)
	r.HandleFunc("/{repo:.+}/git-upload-pack", s.handleUploadPack).Methods(http.MethodPost)
	r.HandleFunc("/{repo:.+}/git-receive-pack", s.handleReceivePack).Methods(http.MethodPost)
	return r
}

func (s *Server) repo(w http.ResponseWriter, r *http.Request) (*Repository, string, bool) {
	name := mux.Vars(r)["repo"]
	repo, err := s.Resolve(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, "", false
	}
	return repo, name, true
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, name string, requirePush bool) bool {
	if s.Auth == nil || (!requirePush && !s.RequireAuthForFetch) {
		return true
	}
	if _, err := s.Auth.Authorize(r, name, requirePush); err != nil {
		switch {
		case plumbing.IsForbidden(err):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
		return false
	}
	return true
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	repo, name, ok := s.repo(w, r)
	if !ok {
		return
	}
	service := r.URL.Query().Get("service")
	requirePush := service == "git-receive-pack"
	if !s.authorize(w, r, name, requirePush) {
		return
	}

	refs, err := transport.Advertise(r.Context(), repo.Refs, repo.Backend)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service))
	w.WriteHeader(http.StatusOK)
	pw := pktline.NewWriter(w)
	if service != "" {
		_ = pw.WriteString(fmt.Sprintf("# service=%s\n", service))
		_ = pw.Flush()
	}
	if err := transport.WriteRefAdvertisement(pw, refs, s.Caps); err != nil {
		gitlog.Errorf("info/refs: writing advertisement for %s: %v", name, err)
	}
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	repo, name, ok := s.repo(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, name, false) {
		return
	}

	pr := pktline.NewReader(r.Body)
	req, _, err := transport.ParseUploadPackRequest(pr, s.Limits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.WriteHeader(http.StatusOK)
	pw := pktline.NewWriter(w)
	if err := transport.UploadPack(r.Context(), repo.Backend, req, pw, s.WriteOpts); err != nil {
		gitlog.Errorf("upload-pack: %s: %v", name, err)
	}
}

func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request) {
	repo, name, ok := s.repo(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, name, true) {
		return
	}

	pr := pktline.NewReader(r.Body)
	cmds, _, err := transport.ParseReceivePackCommands(pr, s.Limits)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	packData, err := io.ReadAll(pr.Remainder())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := transport.ApplyReceivePack(repo.Objects, repo.Refs, packData, cmds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	w.WriteHeader(http.StatusOK)
	pw := pktline.NewWriter(w)
	if err := transport.WriteReportStatus(pw, results); err != nil {
		gitlog.Errorf("receive-pack: %s: %v", name, err)
	}
}

