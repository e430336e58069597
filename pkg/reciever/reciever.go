package reciever

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/repo"
)

var repoRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type errBadRequest struct {
	msg string
}

func (e *errBadRequest) Error() string { return e.msg }

// NewReciever returns a reciever instance.
func NewReciever(l hclog.Logger) *Reciever {
	x := Reciever{
		l:         l.Named("reciever"),
		repoMutex: new(sync.Mutex),
	}

	return &x
}

// SetPath sets the root of the bottle repositories.
func (r *Reciever) SetPath(p string) {
	// If this fails, something is dreadfully wrong.
	r.path, _ = filepath.Abs(p)
}

// Path returns the root of the bottle repositories.
func (r *Reciever) Path() string {
	return r.path
}

// SetNotify installs a function that is told about every bottle
// once it is in its repository index.
func (r *Reciever) SetNotify(fn func(tag string, e *repo.Entry)) {
	r.notify = fn
}

// registerFile adds a bottle to the index of the repository it was
// written into.
func (r *Reciever) registerFile(fPath, name, pkgver, sum string) (*repo.Entry, error) {
	idxPath := filepath.Join(filepath.Dir(fPath), repo.IndexFile)
	e := &repo.Entry{
		Name:     name,
		PkgVer:   pkgver,
		SHA256:   sum,
		Filename: filepath.Base(fPath),
	}

	r.repoMutex.Lock()
	defer r.repoMutex.Unlock()
	entries, err := repo.ReadIndexFile(idxPath)
	if err != nil {
		r.l.Warn("Unable to read index", "path", idxPath, "err", err)
		return nil, err
	}
	entries[name] = e
	if err := repo.WriteIndexFile(idxPath, entries); err != nil {
		r.l.Warn("Unable to register bottle into index", "path", fPath, "err", err)
		return nil, err
	}
	r.l.Trace("Added bottle into index", "path", fPath, "pkgver", pkgver)
	return e, nil
}

// handleFile copies a bottle from HTTP out to an on-disk file and
// registers it.
func (r *Reciever) handleFile(fname string, repoName string, data io.ReadCloser) (*repo.Entry, error) {
	// Do not check error, as it is a reader from HTTP so we don't care too much
	// if it dosen't close properly.
	defer data.Close()

	name, pkgver, tag, err := bottle.ParseFilename(fname)
	if err != nil {
		return nil, &errBadRequest{err.Error()}
	}
	if !repoRe.MatchString(repoName) {
		return nil, &errBadRequest{"invalid repo name " + repoName}
	}

	fPath := filepath.Join(r.path, tag, repoName, fname)
	if err := os.MkdirAll(filepath.Dir(fPath), 0755); err != nil {
		r.l.Warn("Error creating directory", "path", filepath.Dir(fPath), "err", err)
		return nil, err
	}
	out, err := os.CreateTemp(filepath.Dir(fPath), fname+".*.incomplete")
	if err != nil {
		r.l.Warn("Error creating/opening file", "path", fPath, "err", err)
		return nil, err
	}
	tmp := out.Name()
	defer os.Remove(tmp)

	h := sha256.New()
	if _, err = io.Copy(io.MultiWriter(out, h), data); err != nil {
		r.l.Warn("Error copying data into file", "path", tmp, "err", err)
		// If something went wrong copying, the error closing out is likely to
		// be the same.
		_ = out.Close()
		return nil, err
	}
	if err = out.Close(); err != nil {
		r.l.Warn("Error closing out file", "path", tmp, "err", err)
		return nil, err
	}
	if err := os.Rename(tmp, fPath); err != nil {
		return nil, errors.Wrap(err, "committing upload")
	}
	r.l.Trace("Wrote file from HTTP", "path", fPath)

	e, err := r.registerFile(fPath, name, pkgver, hex.EncodeToString(h.Sum(nil)))
	if err != nil {
		return nil, err
	}
	if r.notify != nil {
		r.notify(tag, e)
	}
	return e, nil
}

// HTTPEntry provides the chi mountpoint for the reciever into the routing tree.
func (r *Reciever) HTTPEntry() chi.Router {
	rout := chi.NewRouter()
	rout.Put("/file", r.httpFile)
	return rout
}

// httpFile handles a file recieved via HTTP.
func (r *Reciever) httpFile(w http.ResponseWriter, req *http.Request) {
	e, err := r.handleFile(req.URL.Query().Get("fname"), req.URL.Query().Get("repo"), req.Body)
	if err != nil {
		code := http.StatusInternalServerError
		var bad *errBadRequest
		if errors.As(err, &bad) {
			code = http.StatusBadRequest
		}
		r.httpJSONError(w, err, code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(e)
}

// httpJSONError returns a error as JSON.
func (r *Reciever) httpJSONError(w http.ResponseWriter, err error, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	out := struct {
		Error string
	}{
		Error: err.Error(),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		r.l.Warn("Error encoding JSON error response")
	}
}
