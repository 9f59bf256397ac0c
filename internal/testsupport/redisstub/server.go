// Package redisstub runs a minimal in-process Redis wire server implementing
// the fixed-window commands the login throttle uses: INCR, EXPIRE, and TTL.
// It speaks enough RESP2 for a real client to connect, including AUTH and a
// rejected HELLO so clients negotiate down from RESP3.
package redisstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string
	mu       sync.Mutex
	counters map[string]*counterEntry
	closed   chan struct{}
}

type counterEntry struct {
	value  int64
	expiry time.Time
}

func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:     opts,
		listener: ln,
		addr:     ln.Addr().String(),
		counters: make(map[string]*counterEntry),
		closed:   make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	return s.listener.Close()
}

// Value returns the current counter for key, ignoring expiry.
func (s *Server) Value(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok {
		return 0
	}
	return entry.value
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == ""

	for {
		args, err := readCommand(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToUpper(args[0])

		switch cmd {
		case "HELLO":
			// Declining HELLO makes clients fall back to RESP2.
			writeError(writer, "ERR unknown command 'HELLO'")
		case "AUTH":
			if len(args) < 2 {
				writeError(writer, "ERR wrong number of arguments for 'auth' command")
				break
			}
			password := args[len(args)-1]
			if s.opts.Password == "" || password != s.opts.Password {
				if s.opts.Password == "" {
					writeError(writer, "ERR Client sent AUTH, but no password is set")
				} else {
					writeError(writer, "WRONGPASS invalid username-password pair")
				}
				break
			}
			authenticated = true
			writeSimple(writer, "OK")
		case "PING":
			writeSimple(writer, "PONG")
		case "CLIENT", "SELECT":
			writeSimple(writer, "OK")
		case "QUIT":
			writeSimple(writer, "OK")
			writer.Flush()
			return
		default:
			if !authenticated {
				writeError(writer, "NOAUTH Authentication required.")
				break
			}
			s.dispatch(writer, cmd, args)
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(writer *bufio.Writer, cmd string, args []string) {
	switch cmd {
	case "INCR":
		if len(args) != 2 {
			writeError(writer, "ERR wrong number of arguments for 'incr' command")
			return
		}
		writeInteger(writer, s.incr(args[1]))
	case "EXPIRE":
		if len(args) != 3 {
			writeError(writer, "ERR wrong number of arguments for 'expire' command")
			return
		}
		seconds, err := strconv.Atoi(args[2])
		if err != nil {
			writeError(writer, "ERR value is not an integer or out of range")
			return
		}
		if s.expire(args[1], time.Duration(seconds)*time.Second) {
			writeInteger(writer, 1)
		} else {
			writeInteger(writer, 0)
		}
	case "TTL":
		if len(args) != 2 {
			writeError(writer, "ERR wrong number of arguments for 'ttl' command")
			return
		}
		writeInteger(writer, s.ttl(args[1]))
	default:
		writeError(writer, fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd)))
	}
}

func (s *Server) incr(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok || (!entry.expiry.IsZero() && time.Now().After(entry.expiry)) {
		entry = &counterEntry{}
		s.counters[key] = entry
	}
	entry.value++
	return entry.value
}

func (s *Server) expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok {
		return false
	}
	entry.expiry = time.Now().Add(ttl)
	return true
}

func (s *Server) ttl(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok {
		return -2
	}
	if entry.expiry.IsZero() {
		return -1
	}
	remaining := time.Until(entry.expiry)
	if remaining <= 0 {
		delete(s.counters, key)
		return -2
	}
	seconds := int64(remaining / time.Second)
	if remaining%time.Second > 0 {
		seconds++
	}
	return seconds
}

// readCommand parses a RESP array of bulk strings, the only framing real
// clients use for commands.
func readCommand(reader *bufio.Reader) ([]string, error) {
	line, err := readLine(reader)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("unexpected command framing %q", line)
	}
	count, err := strconv.Atoi(line[1:])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("bad array length %q", line)
	}
	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		header, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if len(header) == 0 || header[0] != '$' {
			return nil, fmt.Errorf("unexpected bulk header %q", header)
		}
		size, err := strconv.Atoi(header[1:])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad bulk length %q", header)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeSimple(writer *bufio.Writer, value string) {
	fmt.Fprintf(writer, "+%s\r\n", value)
}

func writeError(writer *bufio.Writer, message string) {
	fmt.Fprintf(writer, "-%s\r\n", message)
}

func writeInteger(writer *bufio.Writer, value int64) {
	fmt.Fprintf(writer, ":%d\r\n", value)
}
