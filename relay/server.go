// Package relay serves this node's shared items on the catalog endpoint so
// that other nodes can pull them, and announces the endpoint on the relay
// directory.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/YasiruR/mule-sync/domain"
	"github.com/YasiruR/mule-sync/domain/messages"
	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tryfix/log"
)

const headerRequestId = `X-Request-Id`

type localCatalog interface {
	LocalEntries() []models.CatalogEntry
}

type Server struct {
	publicURL     string
	storeEndpoint string
	catalog       localCatalog
	store         services.GraphStore
	ids           services.IdentityAdapter
	router        *mux.Router
	srv           *http.Server
	now           func() time.Time
	log           log.Logger
}

// NewServer creates the catalog server. publicURL is the address other
// nodes reach it on, storeEndpoint the replication endpoint of this node.
func NewServer(publicURL, storeEndpoint string, catalog localCatalog, store services.GraphStore, ids services.IdentityAdapter, l log.Logger) *Server {
	s := &Server{
		publicURL:     paths.RelayBase(publicURL),
		storeEndpoint: storeEndpoint,
		catalog:       catalog,
		store:         store,
		ids:           ids,
		router:        mux.NewRouter(),
		now:           time.Now,
		log:           l,
	}

	s.router.Use(s.requestId)
	s.router.HandleFunc(domain.CatalogEndpoint, s.handleCatalog).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start(addr string) error {
	ln, err := net.Listen(`tcp`, addr)
	if err != nil {
		return fmt.Errorf(`listening on %s failed - %v`, addr, err)
	}

	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(fmt.Sprintf(`catalog server stopped - %v`, err))
		}
	}()

	s.log.Info(fmt.Sprintf(`catalog server listening on %s`, ln.Addr()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf(`catalog server shutdown failed - %v`, err)
	}
	return nil
}

// AnnounceAsPeer writes this relay on the relay directory
func (s *Server) AnnounceAsPeer() error {
	id, ok := s.ids.Current()
	if !ok {
		return services.ErrNoSession
	}

	if s.publicURL == `` {
		return fmt.Errorf(`no public url configured for relay announcement`)
	}

	n := models.RelayAnnouncementNode(id.Alias, s.publicURL, s.storeEndpoint, s.now(), len(s.catalog.LocalEntries()))
	if err := s.store.Put(paths.Relay(id.PublicKey), n); err != nil {
		return fmt.Errorf(`announcing relay failed - %v`, err)
	}

	return nil
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	res := messages.CatalogResponse{Success: true, Catalog: []messages.CatalogItem{}}
	if id, ok := s.ids.Current(); ok {
		res.RelayPubKey = id.PublicKey
	}

	for _, e := range s.catalog.LocalEntries() {
		res.Catalog = append(res.Catalog, item(e))
	}

	data, err := json.Marshal(res)
	if err != nil {
		s.log.Error(fmt.Sprintf(`marshalling catalog response failed [%s] - %v`, r.Header.Get(headerRequestId), err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set(`Content-Type`, `application/json`)
	if _, err = w.Write(data); err != nil {
		s.log.Error(fmt.Sprintf(`writing catalog response failed [%s] - %v`, r.Header.Get(headerRequestId), err))
		return
	}

	s.log.Trace(fmt.Sprintf(`served %d catalog items [%s]`, len(res.Catalog), r.Header.Get(headerRequestId)))
}

func (s *Server) requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerRequestId) == `` {
			r.Header.Set(headerRequestId, uuid.New().String())
		}
		w.Header().Set(headerRequestId, r.Header.Get(headerRequestId))
		next.ServeHTTP(w, r)
	})
}

// item puts the total size on the first file entry since the catalog only
// tracks totals. A sized entry without a file count still gets one file so
// that readers summing file sizes see the total.
func item(e models.CatalogEntry) messages.CatalogItem {
	count := e.Files
	if count == 0 && e.Size > 0 {
		count = 1
	}

	files := make([]messages.CatalogFile, 0, count)
	if count > 0 {
		files = append(files, messages.CatalogFile{Size: e.Size})
		for i := 1; i < count; i++ {
			files = append(files, messages.CatalogFile{})
		}
	}

	return messages.CatalogItem{
		InfoHash:    e.InfoHash,
		Name:        e.Name,
		MagnetURI:   e.MagnetURI,
		Files:       files,
		CompletedAt: messages.CompletedAt(e.SharedAt),
	}
}
