// Package proxy binds the listening socket, classifies incoming
// datagrams, and orchestrates the cache/backend request lifecycle
// described in the design's front-end loop and GetResponse sections.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bkochergin/snmpproxy/internal/backend"
	"github.com/bkochergin/snmpproxy/internal/backendmap"
	"github.com/bkochergin/snmpproxy/internal/cache"
	"github.com/bkochergin/snmpproxy/internal/metrics"
	"github.com/bkochergin/snmpproxy/internal/snmpmsg"
	"golang.org/x/sys/unix"
)

const recvBufferSize = 65536

// resourceUnavailable is the SNMPv2c error-status value the proxy
// synthesizes when a backend never replies.
const resourceUnavailable = 0x0d

// Config carries the launcher-supplied settings described in the
// external interfaces section.
type Config struct {
	ListenAddr        string
	Port              int
	BackendCommunity  string
	BackendTimeout    time.Duration
	NumBackendRetries int
	CacheTTL          time.Duration
	Router            *backendmap.Router // optional; nil disables backend-map resolution
}

// Server is the running proxy: one UDP listener, one cache, one backend
// client, and the plumbing to dispatch a datagram through both.
type Server struct {
	cfg     Config
	conn    *net.UDPConn
	cache   *cache.Cache
	sweeper *cache.Sweeper
	client  *backend.Client
	router  *backendmap.Router

	startedAt      time.Time
	wg             sync.WaitGroup
	packetsHandled int64

	inflightMu sync.Mutex
	inFlight   *inflight
}

// New constructs a Server. The listening socket is not bound until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Port == 0 {
		cfg.Port = backend.Port
	}
	c := cache.New(cfg.CacheTTL)
	sweeper, err := cache.NewSweeper(c, metrics.SetCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("build cache sweeper: %w", err)
	}
	return &Server{
		cfg:      cfg,
		cache:    c,
		sweeper:  sweeper,
		client:   backend.New(cfg.BackendTimeout, cfg.NumBackendRetries),
		router:   cfg.Router,
		inFlight: newInflight(),
	}, nil
}

// Start binds the UDP listener, launches the cache sweeper, and begins
// dispatching incoming datagrams to their own goroutines. Bind failure is
// fatal to the caller (spec.md §6): Start returns the error rather than
// retrying.
func (s *Server) Start(ctx context.Context) error {
	addr := &net.UDPAddr{Port: s.cfg.Port, IP: net.ParseIP(s.cfg.ListenAddr)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", s.cfg.Port, err)
	}
	if err := tuneSocket(conn); err != nil {
		log.Printf("warning: socket tuning failed: %v", err)
	}
	s.conn = conn
	s.startedAt = time.Now()

	s.sweeper.Start()

	s.wg.Add(1)
	go s.receiveLoop(ctx)

	log.Printf("snmpproxy listening on %s:%d", s.cfg.ListenAddr, s.cfg.Port)
	return nil
}

// Stop closes the listener and waits for in-flight work to settle.
func (s *Server) Stop() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.sweeper.Stop()
	s.wg.Wait()
}

// Uptime reports how long the server has been listening. Used by the
// operator status endpoint.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// CacheSize reports the current cache entry count.
func (s *Server) CacheSize() int { return s.cache.Len() }

// PacketsHandled reports the total number of datagrams accepted for
// processing since Start. Used by the operator status endpoint.
func (s *Server) PacketsHandled() int64 { return atomic.LoadInt64(&s.packetsHandled) }

func (s *Server) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, recvBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			// A closed listener during shutdown lands here too; only log
			// while we're still supposed to be running.
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("read error: %v", err)
				continue
			}
		}

		datagram := append([]byte(nil), buf[:n]...)
		s.wg.Add(1)
		go func(remote *net.UDPAddr) {
			defer s.wg.Done()
			s.handleDatagram(datagram, remote)
		}(remote)
	}
}

// handleDatagram implements the front-end loop's per-request steps:
// parse, classify, extract the routing token, rewrite, orchestrate, and
// reply.
func (s *Server) handleDatagram(raw []byte, remote *net.UDPAddr) {
	msg := snmpmsg.Parse(raw)
	if !msg.Initialized() {
		metrics.RecordDropped("malformed")
		return
	}

	switch msg.PDUType() {
	case snmpmsg.GetRequest, snmpmsg.GetNextRequest, snmpmsg.GetBulkRequest:
	default:
		metrics.RecordDropped("unsupported_pdu")
		return
	}
	atomic.AddInt64(&s.packetsHandled, 1)
	metrics.RecordPacket(pduTypeName(msg.PDUType()))

	routingToken := string(msg.Community())
	contextSuffix := string(msg.CommunityIndex())

	dialTarget := s.resolveBackend(routingToken, contextSuffix, remote)

	// Front-end step 5: the backend sees backend_community+context, not
	// the client's routing token.
	msg.SetCommunity([]byte(s.cfg.BackendCommunity + contextSuffix))

	start := time.Now()
	resp, path := s.getResponse(routingToken, contextSuffix, dialTarget, msg)
	metrics.ObserveLatency(path, time.Since(start).Seconds())

	if resp == nil {
		return // DNS/backend I/O failure: acceptable to fail silently
	}
	if _, err := s.conn.WriteToUDP(resp, remote); err != nil {
		log.Printf("send to client %s failed: %v", remote, err)
	}
}

func (s *Server) resolveBackend(routingToken, contextSuffix string, remote *net.UDPAddr) string {
	if s.router == nil {
		return routingToken
	}
	key := backendmap.RequestKey{
		Community: routingToken,
		Context:   strings.TrimPrefix(contextSuffix, "@"),
		SrcIP:     remote.IP.String(),
		DstPort:   s.cfg.Port,
	}
	if target := s.router.Resolve(key); target != "" {
		return target
	}
	return routingToken
}

// getResponse implements §4.6: cache lookup, dedup, backend query, and
// response synthesis. req has already been rewritten to carry the
// backend-facing community. It returns the bytes to send to the client
// (nil if none should be sent) and a metrics path label.
func (s *Server) getResponse(routingToken, contextSuffix, dialTarget string, req *snmpmsg.Message) ([]byte, string) {
	key := cache.Key{
		BackendHost:    routingToken,
		Community:      routingToken,
		CommunityIndex: contextSuffix,
		PDUType:        req.PDUType(),
		Data:           string(req.Data()),
	}

	if v, ok := s.cache.Lookup(key); ok {
		metrics.RecordCacheHit()
		return s.synthesizeFromCache(routingToken, req, v.ResponseData), metrics.PathCacheHit
	}
	metrics.RecordCacheMiss()

	leader, done := s.join(key)
	if !leader {
		<-done
		if v, ok := s.cache.Lookup(key); ok {
			return s.synthesizeFromCache(routingToken, req, v.ResponseData), metrics.PathCacheHit
		}
		// The leader's attempt didn't produce a cache entry (e.g. a
		// resolve failure); fall through and try independently rather
		// than fail every waiter for one bad attempt.
	} else {
		defer s.leave(key, done)
	}

	reply, err := s.client.Query(dialTarget, req.Serialize())
	switch {
	case errors.Is(err, backend.ErrTimeout):
		metrics.RecordBackendAttempt(metrics.OutcomeTimeout)
		resp := req.Clone()
		resp.SetCommunity([]byte(routingToken))
		resp.SetPDUType(snmpmsg.GetResponse)
		resp.SetError(resourceUnavailable)
		s.cache.Insert(key, resp.Data())
		metrics.SetCacheEntries(s.cache.Len())
		return resp.Serialize(), metrics.PathTimeout

	case err != nil:
		metrics.RecordBackendAttempt(metrics.OutcomeResolveError)
		metrics.RecordDropped("backend_io_error")
		log.Printf("backend query to %s failed: %v", dialTarget, err)
		return nil, metrics.PathBackend

	default:
		metrics.RecordBackendAttempt(metrics.OutcomeReply)
		response := snmpmsg.Parse(reply)
		if !response.Initialized() {
			// Unparseable reply: forward verbatim, do not cache.
			return reply, metrics.PathBackend
		}
		s.cache.Insert(key, response.Data())
		metrics.SetCacheEntries(s.cache.Len())
		response.SetCommunity([]byte(routingToken))
		return response.Serialize(), metrics.PathBackend
	}
}

// synthesizeFromCache builds a response for the current client from a
// cached PDU-suffix, preserving that client's own request_id.
func (s *Server) synthesizeFromCache(routingToken string, req *snmpmsg.Message, responseData []byte) []byte {
	resp := req.Clone()
	resp.SetCommunity([]byte(routingToken))
	resp.SetPDUType(snmpmsg.GetResponse)
	resp.SetData(responseData)
	return resp.Serialize()
}

func pduTypeName(t byte) string {
	switch t {
	case snmpmsg.GetRequest:
		return "get_request"
	case snmpmsg.GetNextRequest:
		return "get_next_request"
	case snmpmsg.GetBulkRequest:
		return "get_bulk_request"
	case snmpmsg.GetResponse:
		return "get_response"
	default:
		return "0x" + strconv.FormatInt(int64(t), 16)
	}
}

// tuneSocket raises the receive/send buffers and attempts SO_REUSEPORT,
// mirroring the teacher's setSocketOptions convention. It works on the
// socket through SyscallConn, which leaves it in non-blocking mode so read
// deadlines keep working.
func tuneSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var optErr error
	if err := rawConn.Control(func(sysfd uintptr) {
		fd := int(sysfd)
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, 256*1024); err != nil {
			optErr = fmt.Errorf("set SO_RCVBUF: %w", err)
			return
		}
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, 256*1024); err != nil {
			optErr = fmt.Errorf("set SO_SNDBUF: %w", err)
			return
		}
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, int(unix.SO_REUSEPORT), 1); err != nil {
			log.Printf("warning: SO_REUSEPORT not available: %v", err)
		}
	}); err != nil {
		return err
	}
	return optErr
}
