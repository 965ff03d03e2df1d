// ABOUTME: WebSocket peer with a bounded outbound queue drained by its own writer goroutine
// ABOUTME: Enqueue never blocks, so a slow client only loses its own frames

package transport

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/2389/coven-relay/internal/relay"
)

// wsPeer adapts a websocket connection to relay.Peer.
type wsPeer struct {
	id           string
	conn         *websocket.Conn
	queue        chan relay.Frame
	writeTimeout time.Duration
	logger       *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

func newWSPeer(id string, conn *websocket.Conn, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *wsPeer {
	p := &wsPeer{
		id:           id,
		conn:         conn,
		queue:        make(chan relay.Frame, queueSize),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	p.writerWG.Add(1)
	go p.writeLoop()
	return p
}

func (p *wsPeer) ID() string { return p.id }

// Send enqueues f, returning false when the queue is full or the peer is closed.
func (p *wsPeer) Send(f relay.Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.queue <- f:
		return true
	default:
		return false
	}
}

func (p *wsPeer) writeLoop() {
	defer p.writerWG.Done()

	for {
		select {
		case <-p.done:
			return
		case f := <-p.queue:
			if p.writeTimeout > 0 {
				_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			}
			if err := websocket.JSON.Send(p.conn, f); err != nil {
				p.logger.Debug("write failed, closing connection", "error", err)
				p.close()
				return
			}
		}
	}
}

// close stops the writer and closes the socket, which also ends the read loop.
func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// wait blocks until the writer goroutine has exited.
func (p *wsPeer) wait() {
	p.writerWG.Wait()
}
