// Package memcachetest runs an in-process memcached speaking the text
// protocol subset the gomemcache client uses: version, get(s), set, add, delete.
package memcachetest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type item struct {
	flags uint32
	data  []byte
	exp   time.Time // zero for no expiry
	cas   uint64
}

type Server struct {
	listener net.Listener

	mu      sync.Mutex
	items   map[string]item
	conns   map[net.Conn]struct{}
	nextCas uint64
	closed  bool
}

var (
	writeRx  = regexp.MustCompile(`^(set|add) (\S+) (\d+) (-?\d+) (\d+)( noreply)?\r\n$`)
	deleteRx = regexp.MustCompile(`^delete (\S+)( noreply)?\r\n$`)
)

// Run starts a server on a loopback port and stops it when the test ends.
func Run(t testing.TB) *Server {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("memcachetest: listen: %v", err)
	}
	s := &Server{
		listener: l,
		items:    map[string]item{},
		conns:    map[net.Conn]struct{}{},
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting and drops every open connection. Safe to call twice.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.listener.Close()
	for c := range s.conns {
		c.Close()
	}
}

// Len counts live items, tombstones and values alike.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.items {
		if _, ok := s.lookup(key); ok {
			n++
		}
	}
	return n
}

func (s *Server) serve() {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()

	rw := bufio.NewReadWriter(bufio.NewReader(c), bufio.NewWriter(c))
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return
		}
		if !s.dispatch(rw, line) {
			return
		}
		if err := rw.Flush(); err != nil {
			return
		}
	}
}

// lookup drops expired items. Callers hold mu.
func (s *Server) lookup(key string) (item, bool) {
	it, ok := s.items[key]
	if !ok {
		return item{}, false
	}
	if !it.exp.IsZero() && !it.exp.After(time.Now()) {
		delete(s.items, key)
		return item{}, false
	}
	return it, true
}

func expiry(seconds int64) time.Time {
	switch {
	case seconds == 0:
		return time.Time{}
	case seconds < 0:
		return time.Now()
	case seconds <= 60*60*24*30:
		return time.Now().Add(time.Duration(seconds) * time.Second)
	default:
		return time.Unix(seconds, 0)
	}
}

func (s *Server) dispatch(rw *bufio.ReadWriter, line string) bool {
	switch {
	case line == "version\r\n":
		fmt.Fprint(rw, "VERSION memcachetest\r\n")
		return true

	case strings.HasPrefix(line, "get ") || strings.HasPrefix(line, "gets "):
		_, rest, _ := strings.Cut(line, " ")
		s.mu.Lock()
		for _, key := range strings.Fields(rest) {
			it, ok := s.lookup(key)
			if !ok {
				continue
			}
			fmt.Fprintf(rw, "VALUE %s %d %d %d\r\n", key, it.flags, len(it.data), it.cas)
			rw.Write(it.data)
			rw.WriteString("\r\n")
		}
		s.mu.Unlock()
		fmt.Fprint(rw, "END\r\n")
		return true
	}

	if m := deleteRx.FindStringSubmatch(line); m != nil {
		s.mu.Lock()
		_, ok := s.lookup(m[1])
		delete(s.items, m[1])
		s.mu.Unlock()
		if m[2] == "" {
			if ok {
				fmt.Fprint(rw, "DELETED\r\n")
			} else {
				fmt.Fprint(rw, "NOT_FOUND\r\n")
			}
		}
		return true
	}

	if m := writeRx.FindStringSubmatch(line); m != nil {
		verb, key := m[1], m[2]
		flags, _ := strconv.ParseUint(m[3], 10, 32)
		exp, _ := strconv.ParseInt(m[4], 10, 64)
		size, _ := strconv.Atoi(m[5])

		body := make([]byte, size+2)
		if _, err := io.ReadFull(rw, body); err != nil {
			return false
		}

		s.mu.Lock()
		_, exists := s.lookup(key)
		stored := verb == "set" || !exists
		if stored {
			s.nextCas++
			s.items[key] = item{flags: uint32(flags), data: body[:size], exp: expiry(exp), cas: s.nextCas}
		}
		s.mu.Unlock()

		if m[6] == "" {
			if stored {
				fmt.Fprint(rw, "STORED\r\n")
			} else {
				fmt.Fprint(rw, "NOT_STORED\r\n")
			}
		}
		return true
	}

	fmt.Fprint(rw, "ERROR\r\n")
	return true
}
