// Package server is the station: it relays reliable messages between
// connected clients, splits group messages per member, queues frames for
// offline receivers and serves the meta, visa and member directory.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/message"
	"dim_chat/internal/protocol/meta"
	"dim_chat/internal/protocol/packer"
	"dim_chat/internal/service/facebook"
	"dim_chat/internal/utils/log"
)

const maxBody = 1 << 20

type (
	session struct {
		id   *identity.ID
		conn *websocket.Conn
		mu   sync.Mutex
	}

	HttpServer struct {
		mu       sync.RWMutex
		sessions map[string]*session

		facebook *facebook.Facebook
		packer   *packer.Packer
		queue    Queue
		timeout  time.Duration

		srv *http.Server
	}
)

func (s *session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func NewHttpServer(fb *facebook.Facebook, queue Queue) *HttpServer {
	return &HttpServer{
		sessions: make(map[string]*session),
		facebook: fb,
		// the station only verifies and splits; it never holds cipher keys
		packer:  packer.New(fb, nil),
		queue:   queue,
		timeout: 5 * time.Second,
	}
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/connect", s.HandleConnectWS()).Methods(http.MethodGet)
	r.HandleFunc("/meta/{id}", s.GetMeta()).Methods(http.MethodGet)
	r.HandleFunc("/meta/{id}", s.PostMeta()).Methods(http.MethodPost)
	r.HandleFunc("/visa/{id}", s.GetVisa()).Methods(http.MethodGet)
	r.HandleFunc("/visa/{id}", s.PostVisa()).Methods(http.MethodPost)
	r.HandleFunc("/group/{id}/members", s.GetMembers()).Methods(http.MethodGet)
	r.HandleFunc("/group/{id}/members", s.PostMembers()).Methods(http.MethodPost)
	return r
}

// Run blocks until the listener fails or Shutdown is called.
func (s *HttpServer) Run(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	log.Info("station listening", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for k, sess := range s.sessions {
		sess.conn.Close()
		delete(s.sessions, k)
	}
	s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func sessionKey(id *identity.ID) string {
	return id.WithoutTerminal().String()
}

func (s *HttpServer) session(id *identity.ID) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionKey(id)]
}

func (s *HttpServer) HandleConnectWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		if !id.IsUser() {
			http.Error(w, "only users can connect", http.StatusBadRequest)
			return
		}
		if terminal := r.URL.Query().Get("terminal"); terminal != "" {
			id = identity.Create(id.Name(), id.Address(), terminal)
		}

		key := sessionKey(id)
		s.mu.RLock()
		_, dup := s.sessions[key]
		s.mu.RUnlock()
		if dup {
			http.Error(w, "duplicated id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("upgrade failed", zap.Error(err))
			return
		}

		sess := &session{id: id, conn: conn}
		s.mu.Lock()
		if _, dup := s.sessions[key]; dup {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions[key] = sess
		s.mu.Unlock()
		log.Info("client connected", zap.Stringer("id", id))

		go s.processWSMessage(sess)
		if err := s.ForwardUnsentMessages(sess); err != nil {
			log.Error("forward msg failed", zap.Error(err))
		}
	}
}

func (s *HttpServer) processWSMessage(sess *session) {
	key := sessionKey(sess.id)
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			log.Debug("client web socket closed", zap.Stringer("id", sess.id), zap.Error(err))
			s.mu.Lock()
			if s.sessions[key] == sess {
				delete(s.sessions, key)
			}
			s.mu.Unlock()
			sess.conn.Close()
			return
		}

		if err := s.relay(sess, data); err != nil {
			log.Warn("message dropped", zap.Stringer("from", sess.id), zap.Error(err))
		}
	}
}

// relay checks that a frame is signed by the connected user and delivers it.
func (s *HttpServer) relay(sess *session, data []byte) error {
	rMsg, err := s.packer.Deserialize(data)
	if err != nil {
		return err
	}
	if !rMsg.Sender.SameEntity(sess.id) {
		return fmt.Errorf("sender %s does not match session %s", rMsg.Sender, sess.id)
	}
	if _, err := s.packer.Verify(rMsg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch {
	case rMsg.Receiver.IsBroadcast():
		s.broadcast(sess, data)
		return nil
	case rMsg.Receiver.IsGroup():
		return s.fanOut(ctx, rMsg)
	default:
		return s.deliver(ctx, rMsg.Receiver, data)
	}
}

func (s *HttpServer) broadcast(from *session, data []byte) {
	s.mu.RLock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess != from {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		if err := sess.write(data); err != nil {
			log.Debug("broadcast write failed", zap.Stringer("to", sess.id), zap.Error(err))
		}
	}
}

// fanOut splits a group message into one message per member, skipping the
// sender.
func (s *HttpServer) fanOut(ctx context.Context, rMsg *message.ReliableMessage) error {
	parts, err := s.packer.Split(rMsg, nil)
	if err != nil {
		return err
	}
	for _, part := range parts {
		if part.Receiver.SameEntity(rMsg.Sender) {
			continue
		}
		data, err := s.packer.Serialize(part)
		if err != nil {
			return err
		}
		if err := s.deliver(ctx, part.Receiver, data); err != nil {
			return err
		}
	}
	return nil
}

// deliver writes to the receiver's session, or queues the frame when the
// receiver is offline or the write fails.
func (s *HttpServer) deliver(ctx context.Context, receiver *identity.ID, data []byte) error {
	if sess := s.session(receiver); sess != nil {
		err := sess.write(data)
		if err == nil {
			return nil
		}
		log.Debug("write failed, queueing", zap.Stringer("to", receiver), zap.Error(err))
	}
	return s.queue.Push(ctx, sessionKey(receiver), data)
}

func (s *HttpServer) ForwardUnsentMessages(sess *session) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	messages, err := s.queue.Drain(ctx, sessionKey(sess.id))
	if err != nil {
		return err
	}
	for i, m := range messages {
		if err := sess.write(m.Payload); err != nil {
			// put back what was not delivered
			rest := make([][]byte, 0, len(messages)-i)
			for _, r := range messages[i:] {
				rest = append(rest, r.Payload)
			}
			return multierr.Append(err, s.queue.Push(ctx, sessionKey(sess.id), rest...))
		}
	}
	return nil
}

func pathID(r *http.Request) (*identity.ID, error) {
	id, err := identity.Parse(mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return id.WithoutTerminal(), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("marshal response failed", zap.Error(err))
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBody))
}

func (s *HttpServer) GetMeta() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		m := s.facebook.Meta(id)
		if m == nil {
			http.Error(w, "meta not found", http.StatusNotFound)
			return
		}
		writeJSON(w, m)
	}
}

func (s *HttpServer) PostMeta() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		body, err := readBody(r)
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		m, err := meta.Parse(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.facebook.SaveMeta(m, id); err != nil {
			log.Info("meta rejected", zap.Stringer("id", id), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) GetVisa() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		doc := s.facebook.Visa(id)
		if doc == nil {
			http.Error(w, "visa not found", http.StatusNotFound)
			return
		}
		writeJSON(w, doc)
	}
}

func (s *HttpServer) PostVisa() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		body, err := readBody(r)
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		doc, err := document.Parse(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !doc.ID().SameEntity(id) {
			http.Error(w, "document id mismatch", http.StatusBadRequest)
			return
		}
		if err := s.facebook.SaveDocument(doc); err != nil {
			log.Info("visa rejected", zap.Stringer("id", id), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) GetMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := pathID(r)
		if err != nil || !group.IsGroup() {
			http.Error(w, "invalid group", http.StatusBadRequest)
			return
		}
		writeJSON(w, identity.Strings(s.facebook.Members(group)))
	}
}

func (s *HttpServer) PostMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := pathID(r)
		if err != nil || !group.IsGroup() {
			http.Error(w, "invalid group", http.StatusBadRequest)
			return
		}
		body, err := readBody(r)
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		var list []string
		if err := json.Unmarshal(body, &list); err != nil {
			http.Error(w, "invalid member list", http.StatusBadRequest)
			return
		}
		if err := s.facebook.SaveMembers(group, identity.ParseAll(list)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
