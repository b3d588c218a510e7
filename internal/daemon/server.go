package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/ferrisfind/internal/cas"
	"github.com/jcdickinson/ferrisfind/internal/config"
	"github.com/jcdickinson/ferrisfind/internal/db"
	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/indexfile"
	"github.com/jcdickinson/ferrisfind/internal/query"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
	"github.com/jcdickinson/ferrisfind/internal/search"
)

type Server struct {
	db         *db.DB
	cfg        *config.Config
	socketPath string
	httpServer *http.Server
	listener   net.Listener

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration

	// searcher is swapped whole after every rebuild so searches never block
	// on a load.
	searcher  atomic.Pointer[search.Searcher]
	rebuildMu sync.Mutex
	sourcesMu sync.Mutex
	sources   map[string][]index.RawCrate
	loadGroup singleflight.Group

	// registerMu pairs name allocation with the upsert that claims it.
	registerMu sync.Mutex

	stopOnce sync.Once
	stopErr  error
	exit     func(code int)
}

func NewServer(cfg *config.Config, database *db.DB, socketPath string) *Server {
	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	s := &Server{
		db:         database,
		cfg:        cfg,
		socketPath: socketPath,
		expiration: time.Duration(expSec) * time.Second,
		sources:    make(map[string][]index.RawCrate),
		exit:       os.Exit,
	}
	s.searcher.Store(s.newSearcher(index.Build(nil)))
	return s
}

func (s *Server) newSearcher(idx *index.Index) *search.Searcher {
	return search.NewSearcher(idx, search.Options{RootPath: s.cfg.Search.RootPath})
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = listener

	// Connections queue on the listener until the index is restored.
	if err := s.Restore(ctx); err != nil {
		log.Printf("daemon: restore failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /load", s.withExpReset(s.handleLoad))
	mux.HandleFunc("POST /unload", s.withExpReset(s.handleUnload))
	mux.HandleFunc("POST /search", s.withExpReset(s.handleSearch))
	mux.HandleFunc("POST /parse", s.withExpReset(s.handleParse))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /prune", s.withExpReset(s.handlePrune))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)

	s.httpServer = &http.Server{Handler: mux}

	s.mu.Lock()
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	log.Printf("daemon: listening on %s (expires after %s of inactivity)", s.socketPath, s.expiration)

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Stop shuts the server down. Only the first call does any work.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.expTimer != nil {
			s.expTimer.Stop()
		}
		s.mu.Unlock()

		var errs []error
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				log.Printf("daemon: shutdown error: %v", err)
				errs = append(errs, err)
			}
		}
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("daemon: listener close error: %v", err)
				errs = append(errs, err)
			}
		}
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("daemon: socket remove error: %v", err)
			errs = append(errs, err)
		}
		if err := s.db.Close(); err != nil {
			log.Printf("daemon: db close error: %v", err)
			errs = append(errs, err)
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

func (s *Server) expire() {
	log.Printf("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

// Restore rebuilds the index from every registered source, then loads the
// configured index paths.
func (s *Server) Restore(ctx context.Context) error {
	sources, err := s.db.ListSources()
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	decoded := make([][]index.RawCrate, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			crates, err := restoreSource(src)
			if err != nil {
				log.Printf("daemon: skipping source %s: %v", src.Name, err)
				return nil
			}
			decoded[i] = crates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	restored := 0
	s.sourcesMu.Lock()
	for i, src := range sources {
		if decoded[i] != nil {
			s.sources[src.Name] = decoded[i]
			restored++
		}
	}
	s.sourcesMu.Unlock()
	log.Printf("daemon: restored %d of %d sources", restored, len(sources))

	for _, p := range s.cfg.Index.Paths {
		if r := s.loadSource(p); r.Error != "" {
			log.Printf("daemon: loading %s: %s", p, r.Error)
		}
	}
	return s.rebuild()
}

// restoreSource decodes a source from its CAS snapshot, falling back to
// the file it was loaded from.
func restoreSource(src db.Source) ([]index.RawCrate, error) {
	data, err := cas.Read(src.ContentHash)
	if err != nil {
		log.Printf("daemon: snapshot of %s unavailable, rereading %s: %v", src.Name, src.Path, err)
		if data, err = os.ReadFile(src.Path); err != nil {
			return nil, err
		}
	}
	return indexfile.Decode(data)
}

// rebuild merges all sources in registration order and publishes a new
// searcher. A crate from a later source replaces one of the same name.
func (s *Server) rebuild() error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	sources, err := s.db.ListSources()
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	s.sourcesMu.Lock()
	var merged []index.RawCrate
	pos := make(map[string]int)
	for _, src := range sources {
		for _, c := range s.sources[src.Name] {
			if i, ok := pos[c.Name]; ok {
				merged[i] = c
				continue
			}
			pos[c.Name] = len(merged)
			merged = append(merged, c)
		}
	}
	s.sourcesMu.Unlock()

	start := time.Now()
	idx := index.Build(merged)
	s.searcher.Store(s.newSearcher(idx))
	log.Printf("daemon: built index of %d crates, %d items in %s", len(merged), idx.Len(), time.Since(start))
	return nil
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req rpc.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	send := func(line rpc.ProgressLine) bool {
		if line.Message != "" {
			log.Printf("daemon: %s", line.Message)
		}
		if err := enc.Encode(line); err != nil {
			log.Printf("daemon: client disconnected: %v", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	loaded := false
	for _, p := range req.Paths {
		send(rpc.ProgressLine{Type: "progress", Message: fmt.Sprintf("loading %s", p)})
		result := s.loadSource(p)
		loaded = loaded || result.Error == ""
		if !send(rpc.ProgressLine{Type: "result", Result: &result}) {
			break
		}
	}
	if !loaded {
		return
	}
	if err := s.rebuild(); err != nil {
		send(rpc.ProgressLine{Type: "progress", Message: fmt.Sprintf("rebuild failed: %v", err)})
		return
	}
	send(rpc.ProgressLine{Type: "progress", Message: fmt.Sprintf("index ready: %d items", s.searcher.Load().Index().Len())})
}

// loadSource reads, validates, snapshots, and registers one index file.
// Concurrent loads of the same file share one result.
func (s *Server) loadSource(path string) rpc.SourceResult {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	v, _, _ := s.loadGroup.Do(abs, func() (interface{}, error) {
		return s.loadSourceWork(abs), nil
	})
	return v.(rpc.SourceResult)
}

func (s *Server) loadSourceWork(path string) rpc.SourceResult {
	result := rpc.SourceResult{Name: filepath.Base(path), Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("reading index: %v", err)
		return result
	}
	crates, err := indexfile.Decode(data)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	hash, err := cas.Write(data)
	if err != nil {
		result.Error = fmt.Sprintf("snapshotting index: %v", err)
		return result
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	name, err := s.db.SourceName(path)
	if err != nil {
		result.Error = fmt.Sprintf("naming source: %v", err)
		return result
	}
	result.Name = name

	rows := make([]db.SourceCrate, len(crates))
	for i, c := range crates {
		rows[i] = db.SourceCrate{Name: c.Name, Items: len(c.Names)}
		result.Crates = append(result.Crates, c.Name)
		result.Items += len(c.Names)

		if others, err := s.db.SourcesForCrate(c.Name); err == nil {
			for _, o := range others {
				if o != result.Name {
					log.Printf("daemon: crate %s in %s is also provided by %s", c.Name, result.Name, o)
				}
			}
		}
	}
	if _, err := s.db.UpsertSource(result.Name, path, hash, rows); err != nil {
		result.Error = err.Error()
		return result
	}

	s.sourcesMu.Lock()
	s.sources[result.Name] = crates
	s.sourcesMu.Unlock()
	return result
}

// lookupSource resolves an unload key, which is either a registry name or
// the path a source was loaded from.
func (s *Server) lookupSource(key string) (*db.Source, error) {
	src, err := s.db.GetSource(key)
	if err != nil || src != nil {
		return src, err
	}
	abs, err := filepath.Abs(key)
	if err != nil {
		return nil, nil
	}
	return s.db.SourceByPath(abs)
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req rpc.UnloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := rpc.UnloadResponse{Removed: []string{}}
	s.registerMu.Lock()
	for _, key := range req.Names {
		src, err := s.lookupSource(key)
		if err == nil && src != nil {
			var removed bool
			if removed, err = s.db.DeleteSource(src.Name); removed {
				resp.Removed = append(resp.Removed, src.Name)
			}
			s.sourcesMu.Lock()
			delete(s.sources, src.Name)
			s.sourcesMu.Unlock()
		}
		if err != nil {
			s.registerMu.Unlock()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.registerMu.Unlock()
	if len(resp.Removed) > 0 {
		if err := s.rebuild(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req rpc.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CurrentCrate == "" {
		req.CurrentCrate = s.cfg.Search.CurrentCrate
	}

	resp := s.searcher.Load().Search(req.Query, search.Filter{
		Crate:        req.Crate,
		CurrentCrate: req.CurrentCrate,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req rpc.ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ParseQuery(req.Query))
}

// ParseQuery parses a query for display, with suggestions when the type
// filter is unknown.
func ParseQuery(raw string) rpc.ParseResponse {
	q := query.Parse(raw)
	resp := rpc.ParseResponse{Query: q}
	var unknown *query.UnknownTypeFilterError
	if errors.As(q.Err, &unknown) {
		resp.Suggestions = unknown.Suggestions
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.ListSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := rpc.StatusResponse{
		Sources: []rpc.SourceStatus{},
		Items:   s.searcher.Load().Index().Len(),
	}
	for _, src := range sources {
		st := rpc.SourceStatus{
			Name:        src.Name,
			Path:        src.Path,
			ContentHash: src.ContentHash,
			LoadedAt:    src.LoadedAt,
		}
		for _, c := range src.Crates {
			st.Crates = append(st.Crates, rpc.CrateStatus{Name: c.Name, Items: c.Items})
		}
		resp.Sources = append(resp.Sources, st)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePrune drops CAS snapshots no registered source refers to.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.ListSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	keep := make(map[string]bool, len(sources))
	for _, src := range sources {
		keep[src.ContentHash] = true
	}
	removed, err := cas.Prune(keep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("daemon: pruned %d snapshots", removed)
	writeJSON(w, http.StatusOK, rpc.PruneResponse{Removed: removed})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		s.exit(0)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
