package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/ledger"
	"github.com/mina-witness/indexer/internal/obslog"
	"github.com/mina-witness/indexer/internal/store"
)

// readDeadline bounds how long the server waits for a client to finish
// sending its request line, so a hung client cannot pin a goroutine
// forever.
const readDeadline = 5 * time.Second

// Server answers CLI queries over a unix domain socket, backed
// exclusively by a read-only secondary store handle: it never touches
// the primary store the ingestion worker owns.
type Server struct {
	sec        *store.Secondary
	socketPath string
	listener   net.Listener
	quit       chan struct{}
}

// NewServer builds a Server reading from sec and listening at socketPath.
func NewServer(sec *store.Secondary, socketPath string) *Server {
	return &Server{sec: sec, socketPath: socketPath, quit: make(chan struct{})}
}

// Start removes any stale socket file, binds, and begins accepting
// connections in a background goroutine.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = l
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() error {
	close(s.quit)
	err := s.listener.Close()
	_ = os.Remove(s.socketPath)
	return err
}

func (s *Server) acceptLoop() {
	log := obslog.For("ipc")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log.Warnw("accept error", "error", err)
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(readDeadline))

	req, err := readRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}

	reply := s.dispatch(req)
	writeReply(conn, req, reply)
}

// reply is the uniform shape every command handler produces; Err is
// empty on success.
type reply struct {
	Err  string      `json:"error,omitempty"`
	Data interface{} `json:"data,omitempty"`
	Text string      `json:"-"`
}

func (s *Server) dispatch(req Request) reply {
	switch req.Command {
	case "account":
		return s.handleAccount(req)
	case "block":
		return s.handleBlock(req)
	case "chain":
		return s.handleChain(req)
	case "ledger":
		return s.handleLedger(req)
	case "ledger-at-height":
		return s.handleLedgerAtHeight(req)
	case "checkpoint":
		return s.handleCheckpoint(req)
	case "summary":
		return s.handleSummary(req)
	case "shutdown":
		return s.handleShutdown(req)
	case "":
		return reply{Err: "empty command"}
	default:
		return reply{Err: fmt.Sprintf("unrecognised command %q", req.Command)}
	}
}

func writeReply(conn net.Conn, req Request, r reply) {
	if req.JSON {
		data, err := json.Marshal(r)
		if err != nil {
			fmt.Fprintf(conn, `{"error":%q}`, err.Error())
			return
		}
		conn.Write(data)
		return
	}
	if r.Err != "" {
		fmt.Fprintf(conn, "error: %s\n", r.Err)
		return
	}
	if r.Text != "" {
		fmt.Fprintln(conn, r.Text)
		return
	}
	data, _ := json.MarshalIndent(r.Data, "", "  ")
	conn.Write(data)
	fmt.Fprintln(conn)
}

func (s *Server) handleAccount(req Request) reply {
	pk, ok := flag(req.Args, "--public-key")
	if !ok {
		return reply{Err: "missing --public-key"}
	}
	_, snapshotHash, err := s.sec.GetLatestLedgerSnapshot()
	if err != nil {
		return reply{Err: err.Error()}
	}
	l, err := s.sec.GetLedger(snapshotHash)
	if err != nil {
		return reply{Err: err.Error()}
	}
	a := l.Get(pk)
	if a == nil {
		return reply{Err: "account not found in latest ledger snapshot"}
	}
	return reply{Data: a, Text: formatAccount(a)}
}

func (s *Server) handleBlock(req Request) reply {
	if hash, ok := flag(req.Args, "--state-hash"); ok {
		blk, err := s.sec.GetBlock(hash)
		if err != nil {
			return reply{Err: err.Error()}
		}
		return reply{Data: blk, Text: formatBlock(blk)}
	}
	if len(req.Args) > 0 && req.Args[0] == "best-tip" {
		// The best tip is a leaf of the root branch, which the flat
		// blocks-by-height column family cannot distinguish from a
		// dangling or orphaned branch at the same or greater height:
		// consult the meta key the single-writer Machine maintains
		// instead of scanning by height.
		_, hash, err := s.sec.GetBestTip()
		if err != nil {
			return reply{Err: err.Error()}
		}
		blk, err := s.sec.GetBlock(hash)
		if err != nil {
			return reply{Err: err.Error()}
		}
		return reply{Data: blk, Text: formatBlock(blk)}
	}
	return reply{Err: "expected 'best-tip' or --state-hash"}
}

func (s *Server) handleChain(req Request) reply {
	numStr, ok := flag(req.Args, "--num")
	if !ok {
		return reply{Err: "missing --num"}
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return reply{Err: "invalid --num"}
	}

	end, err := s.sec.MaxCanonicalHeight()
	if err != nil {
		return reply{Err: err.Error()}
	}
	if endHashArg, ok := flag(req.Args, "--end-state-hash"); ok {
		blk, err := s.sec.GetBlock(endHashArg)
		if err != nil {
			return reply{Err: err.Error()}
		}
		end = blk.Length
	}

	start := uint64(1)
	if int64(end) > int64(n)-1 {
		start = end - uint64(n) + 1
	}

	var blocks []interface{}
	for h := start; h <= end; h++ {
		hash, err := s.sec.GetCanonicalHashAtHeight(h)
		if err != nil {
			continue
		}
		blk, err := s.sec.GetBlock(hash)
		if err != nil {
			continue
		}
		blocks = append(blocks, blk)
	}
	return reply{Data: blocks}
}

func (s *Server) handleLedger(req Request) reply {
	hash, ok := flag(req.Args, "--hash")
	if !ok {
		return reply{Err: "missing --hash"}
	}
	l, err := s.sec.GetLedger(hash)
	if err != nil {
		return reply{Err: err.Error()}
	}
	return reply{Data: ledgerAccounts(l)}
}

func (s *Server) handleLedgerAtHeight(req Request) reply {
	heightStr, ok := flag(req.Args, "--height")
	if !ok {
		return reply{Err: "missing --height"}
	}
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil {
		return reply{Err: "invalid --height"}
	}
	hash, err := s.sec.GetCanonicalHashAtHeight(height)
	if err != nil {
		return reply{Err: err.Error()}
	}
	l, err := s.sec.GetLedger(hash)
	if err != nil {
		return reply{Err: "no snapshot recorded at this height: " + err.Error()}
	}
	return reply{Data: ledgerAccounts(l)}
}

func (s *Server) handleCheckpoint(req Request) reply {
	dest, ok := flag(req.Args, "--path")
	if !ok {
		return reply{Err: "missing --path"}
	}
	if err := s.sec.Checkpoint(dest); err != nil {
		return reply{Err: err.Error()}
	}
	return reply{Text: "checkpoint written to " + dest}
}

func (s *Server) handleSummary(req Request) reply {
	maxCanon, _ := s.sec.MaxCanonicalHeight()
	maxBlock, _ := s.sec.MaxBlockHeight()
	nextSeq, _ := s.sec.NextSeq()
	snapHeight, snapHash, _ := s.sec.GetLatestLedgerSnapshot()

	summary := struct {
		MaxCanonicalHeight  uint64 `json:"max_canonical_height"`
		MaxBlockHeight      uint64 `json:"max_block_height"`
		NextEventSeq        uint64 `json:"next_event_seq"`
		LatestSnapshotHeight uint64 `json:"latest_snapshot_height"`
		LatestSnapshotHash  string `json:"latest_snapshot_hash"`
	}{maxCanon, maxBlock, nextSeq, snapHeight, snapHash}

	return reply{Data: summary, Text: fmt.Sprintf(
		"max_canonical_height=%d max_block_height=%d next_event_seq=%d latest_snapshot=%d/%s",
		maxCanon, maxBlock, nextSeq, snapHeight, snapHash,
	)}
}

// handleShutdown is accepted for protocol completeness but the query
// server itself never owns the process lifecycle; cmd/indexer wires a
// separate signal handler for graceful shutdown of the ingestion
// worker, since the IPC server only holds a read-only store handle.
func (s *Server) handleShutdown(req Request) reply {
	return reply{Text: "shutdown acknowledged"}
}

func ledgerAccounts(l *ledger.Ledger) []*ledger.Account {
	var out []*ledger.Account
	l.Each(func(a *ledger.Account) {
		out = append(out, a)
	})
	return out
}

func formatAccount(a *ledger.Account) string {
	return fmt.Sprintf("%s balance=%d nonce=%d delegate=%s", a.PublicKey, a.BalanceNanos, a.Nonce, a.Delegate)
}

func formatBlock(b *blockfile.Block) string {
	return fmt.Sprintf("%s parent=%s length=%d slot=%d creator=%s commands=%d",
		b.StateHash, b.ParentHash, b.Length, b.GlobalSlot, b.Creator,
		len(b.SignedCommands)+len(b.InternalCommands))
}
