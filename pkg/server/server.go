package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/file"
	"github.com/weberc2/easyfs/pkg/vfs"
	pz "github.com/weberc2/httpeasy"
	"golang.org/x/crypto/bcrypt"
)

// Server exposes the root directory of a volume over HTTP. It never
// modifies the volume.
type Server struct {
	Root *vfs.Inode

	// PasswordHash is a bcrypt hash. When set, every route requires HTTP
	// basic auth with that password (any user name is accepted).
	PasswordHash string

	Logger logrus.FieldLogger
}

type listing struct {
	Name string `json:"name"`
	vfs.Stat
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		return logger
	}
	return s.Logger
}

// Routes returns the server's routes wrapped in the auth check.
func (s *Server) Routes() []pz.Route {
	routes := []pz.Route{
		s.ListRoute(),
		s.ContentRoute(),
		s.StatRoute(),
	}
	for i := range routes {
		routes[i].Handler = s.auth(routes[i].Handler)
	}
	return routes
}

func (s *Server) ListRoute() pz.Route {
	return pz.Route{
		Path:   "/files",
		Method: "GET",
		Handler: func(r pz.Request) pz.Response {
			names, err := s.Root.Ls()
			if err != nil {
				return pz.InternalServerError(e{err})
			}
			files := make([]listing, 0, len(names))
			for _, name := range names {
				stat, err := s.Root.Stat(name)
				if err != nil {
					return pz.InternalServerError(e{err})
				}
				files = append(files, listing{Name: name, Stat: stat})
			}
			return pz.Ok(pz.JSON(files), struct {
				Message string
				Files   int
			}{
				Message: "listed files",
				Files:   len(files),
			})
		},
	}
}

func (s *Server) ContentRoute() pz.Route {
	return pz.Route{
		Path:   "/files/{name}",
		Method: "GET",
		Handler: func(r pz.Request) pz.Response {
			name := r.Vars["name"]
			f, err := file.Open(s.Root, name, file.O_RDONLY)
			if err != nil {
				return s.lookupError(name, err)
			}
			data, err := f.ReadAll()
			if err != nil {
				return pz.InternalServerError(e{err})
			}
			s.logger().WithFields(logrus.Fields{
				"name":  name,
				"inode": f.Inode().ID(),
				"size":  len(data),
			}).Debug("serving file")
			return pz.Ok(pz.String(string(data)), struct {
				Message string
				Name    string
				Size    int
			}{
				Message: "read file",
				Name:    name,
				Size:    len(data),
			})
		},
	}
}

func (s *Server) StatRoute() pz.Route {
	return pz.Route{
		Path:   "/stat/{name}",
		Method: "GET",
		Handler: func(r pz.Request) pz.Response {
			name := r.Vars["name"]
			stat, err := s.Root.Stat(name)
			if err != nil {
				return s.lookupError(name, err)
			}
			return pz.Ok(pz.JSON(listing{Name: name, Stat: stat}))
		},
	}
}

func (s *Server) lookupError(name string, err error) pz.Response {
	if errors.Is(err, vfs.ErrNotFound) {
		return pz.NotFound(
			pz.Stringf("file `%s` not found", name),
			struct {
				Message string
				Name    string
			}{
				Message: "file not found",
				Name:    name,
			},
		)
	}
	if errors.Is(err, vfs.ErrIsDir) {
		return pz.BadRequest(
			pz.Stringf("`%s` is a directory", name),
			e{err},
		)
	}
	return pz.InternalServerError(e{err})
}

func (s *Server) auth(h pz.Handler) pz.Handler {
	if s.PasswordHash == "" {
		return h
	}
	return func(r pz.Request) pz.Response {
		password, err := basicAuthPassword(r.Headers.Get("Authorization"))
		if err == nil {
			err = bcrypt.CompareHashAndPassword(
				[]byte(s.PasswordHash),
				[]byte(password),
			)
		}
		if err != nil {
			return pz.Unauthorized(pz.String("Unauthorized"), struct {
				Message string
				Error   string
			}{
				Message: "authentication failed",
				Error:   err.Error(),
			})
		}
		return h(r)
	}
}

var errMissingBasicAuth = errors.New("missing `Basic` authorization")

func basicAuthPassword(authorization string) (string, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(authorization, prefix) {
		return "", errMissingBasicAuth
	}
	decoded, err := base64.StdEncoding.DecodeString(
		authorization[len(prefix):],
	)
	if err != nil {
		return "", errMissingBasicAuth
	}
	_, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", errMissingBasicAuth
	}
	return password, nil
}

type e struct {
	err error
}

func (e e) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct{ Err string }{e.err.Error()})
}
