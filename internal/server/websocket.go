package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/pkg/types"
)

// StreamRequest is a message sent by a search stream client on every
// keystroke.
type StreamRequest struct {
	Query string `json:"query"`
	Page  int    `json:"page"`
}

// StreamResponse answers the latest StreamRequest of a burst. Superseded
// requests get no response.
type StreamResponse struct {
	Query   string         `json:"query"`
	Page    int            `json:"page"`
	Records []types.Record `json:"records"`
}

// searchStream is one WebSocket client of /ws/search.
type searchStream struct {
	srv       *Server
	conn      *websocket.Conn
	debouncer *search.Debouncer
	page      atomic.Int64
}

// handleSearchStream handles GET /ws/search.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		select {
		case <-s.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	st := &searchStream{srv: s, conn: conn}
	st.page.Store(1)
	st.debouncer = search.NewDebouncer(s.opts.Debounce, st.search)
	s.log.Debug("search stream opened", "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	for {
		var req StreamRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			break
		}
		if req.Page < 1 {
			req.Page = 1
		}
		st.page.Store(int64(req.Page))
		pending := st.debouncer.Schedule(ctx, req.Query)

		wg.Add(1)
		go func() {
			defer wg.Done()
			st.reply(ctx, req, pending)
		}()
	}

	cancel()
	st.debouncer.Stop()
	wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.log.Debug("search stream closed", "remote", r.RemoteAddr)
}

// reply writes the result of pending unless a newer request superseded it.
func (st *searchStream) reply(ctx context.Context, req StreamRequest, pending *search.Pending) {
	records, ok := pending.Wait()
	if !ok {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp := StreamResponse{Query: search.NormalizeQuery(req.Query), Page: req.Page, Records: records}
	if err := wsjson.Write(writeCtx, st.conn, resp); err != nil {
		st.srv.log.Debug("search stream write failed", "error", err)
	}
}

// search runs one debounced search against the current page. A page that
// cannot be loaded leaves only the remote hits.
func (st *searchStream) search(ctx context.Context, q string) []types.Record {
	page := int(st.page.Load())
	local, err := st.srv.dataset.Records(ctx, page)
	if err != nil {
		st.srv.log.Warn("search stream could not load page", "page", page, "error", err)
		local = nil
	}
	return st.srv.search.Search(ctx, q, local)
}
