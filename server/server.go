// Package server exposes a StorageEngine over a length-prefixed binary
// TCP protocol: a per-connection goroutine polls a shutdown channel
// alongside a short read deadline, and Shutdown is guarded by
// sync.Once so repeated shutdown requests are harmless. An errgroup
// tracks the connection goroutines so a failure surfaces instead of
// being silently dropped, and every connection gets a uuid
// correlation id in its log lines.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-db/kestrel/catalog"
	"github.com/kestrel-db/kestrel/engine"
	"github.com/kestrel-db/kestrel/exec"
	"github.com/kestrel-db/kestrel/txn"
)

type Server struct {
	addr     string
	listener net.Listener

	engine *engine.StorageEngine

	shutdown     chan struct{}
	shutdownOnce *sync.Once
}

func NewServer(addr string, storageEngine *engine.StorageEngine) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:       storageEngine,
		listener:     listener,
		addr:         addr,
		shutdown:     make(chan struct{}),
		shutdownOnce: &sync.Once{},
	}, nil
}

func sendErrorResponse(conn net.Conn, connID string, err error, message string) {
	slog.Error(err.Error(), "msg", message, "conn_id", connID)
	if _, err2 := conn.Write(encodeError(err)); err2 != nil {
		slog.Error(err2.Error(), "msg", "error while writing to connection", "conn_id", connID)
	}
}

func write(conn net.Conn, connID string, response []byte) {
	if _, err := conn.Write(response); err != nil {
		slog.Error(err.Error(), "msg", "error while writing to connection", "conn_id", connID)
	}
}

// lookup resolves a request's transaction id and table oid together,
// the pair almost every op needs before it can build an operator.
func (server *Server) lookup(txnID uint64, tableOid uint32) (*txn.Transaction, *catalog.TableInfo, error) {
	transaction, ok := server.engine.Transactions().GetTransaction(txn.TxnID(txnID))
	if !ok {
		return nil, nil, fmt.Errorf("server: unknown transaction %d", txnID)
	}
	info, ok := server.engine.Catalog().TableByOID(tableOid)
	if !ok {
		return nil, nil, fmt.Errorf("server: unknown table %d", tableOid)
	}
	return transaction, info, nil
}

func (server *Server) indexHandles(tableName string) []exec.IndexHandle {
	return server.engine.Catalog().GetTableIndexes(tableName)
}

func (server *Server) scanAll(table *catalog.TableInfo, transaction *txn.Transaction) ([]exec.Row, error) {
	scan := exec.NewSeqScan(table.Table, server.engine.Transactions(), transaction, nil)
	if err := scan.Init(); err != nil {
		return nil, err
	}
	var rows []exec.Row
	for {
		row, _, ok, err := scan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// drainCount runs a single-shot write operator (Insert/Delete) to
// completion and decodes the count row it returns.
func drainCount(op exec.Operator) (int, error) {
	if err := op.Init(); err != nil {
		return 0, err
	}
	row, _, ok, err := op.Next()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return exec.DecodeCount(row), nil
}

// handleRequest dispatches a single request to the storage engine,
// one case per op code, each driving a transaction or execution
// operator against the catalog.
func (server *Server) handleRequest(conn net.Conn, connID string) {
	req, err := readRequest(conn)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if err != nil {
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
			sendErrorResponse(conn, connID, err, "error while reading request")
		}
		return
	}

	switch req.opCode {

	case opPing:
		write(conn, connID, encodeOK(nil))

	case opCreateTable:
		name, columns := decodeCreateTableBody(req.body)
		info, err := server.engine.Catalog().CreateTable(name, int(columns))
		if err != nil {
			sendErrorResponse(conn, connID, err, "create table failed")
			return
		}
		slog.Info("table created", "conn_id", connID, "name", name, "oid", info.OID)
		write(conn, connID, encodeOK(encodeCreateTableResponse(info.OID)))

	case opBegin:
		isolation := txn.IsolationLevel(decodeBeginBody(req.body))
		transaction := server.engine.Transactions().Begin(isolation)
		slog.Info("transaction started", "conn_id", connID, "txn_id", transaction.ID())
		write(conn, connID, encodeOK(encodeBeginResponse(uint64(transaction.ID()))))

	case opCommit:
		id, err := decodeTxnIDBody(req.body)
		if err != nil {
			sendErrorResponse(conn, connID, err, "malformed commit body")
			return
		}
		transaction, ok := server.engine.Transactions().GetTransaction(txn.TxnID(id))
		if !ok {
			sendErrorResponse(conn, connID, fmt.Errorf("server: unknown transaction %d", id), "commit failed")
			return
		}
		if _, err := server.engine.Transactions().Commit(transaction); err != nil {
			sendErrorResponse(conn, connID, err, "commit failed")
			return
		}
		write(conn, connID, encodeOK(nil))

	case opAbort:
		id, err := decodeTxnIDBody(req.body)
		if err != nil {
			sendErrorResponse(conn, connID, err, "malformed abort body")
			return
		}
		transaction, ok := server.engine.Transactions().GetTransaction(txn.TxnID(id))
		if !ok {
			sendErrorResponse(conn, connID, fmt.Errorf("server: unknown transaction %d", id), "abort failed")
			return
		}
		server.engine.Transactions().Abort(transaction)
		write(conn, connID, encodeOK(nil))

	case opInsert:
		id, tableOid, row, err := decodeInsertBody(req.body)
		if err != nil {
			sendErrorResponse(conn, connID, err, "malformed insert body")
			return
		}
		transaction, table, err := server.lookup(id, tableOid)
		if err != nil {
			sendErrorResponse(conn, connID, err, "insert failed")
			return
		}
		insert := exec.NewInsert(table.Table, transaction, tableOid, server.indexHandles(table.Name), exec.NewRowFeed(row))
		count, err := drainCount(insert)
		if err != nil {
			sendErrorResponse(conn, connID, err, "insert failed")
			return
		}
		write(conn, connID, encodeOK(encodeCountResponse(count)))

	case opDelete:
		id, tableOid, rid, err := decodeDeleteBody(req.body)
		if err != nil {
			sendErrorResponse(conn, connID, err, "malformed delete body")
			return
		}
		transaction, table, err := server.lookup(id, tableOid)
		if err != nil {
			sendErrorResponse(conn, connID, err, "delete failed")
			return
		}
		row, ok := exec.FetchByRID(table.Table, server.engine.Transactions(), transaction, rid)
		if !ok {
			sendErrorResponse(conn, connID, fmt.Errorf("server: rid %s not visible", rid), "delete failed")
			return
		}
		del := exec.NewDelete(table.Table, server.engine.Transactions(), transaction, tableOid, server.indexHandles(table.Name), exec.NewRIDFeed(row, rid))
		count, err := drainCount(del)
		if err != nil {
			sendErrorResponse(conn, connID, err, "delete failed")
			return
		}
		write(conn, connID, encodeOK(encodeCountResponse(count)))

	case opScan:
		id, tableOid, err := decodeScanBody(req.body)
		if err != nil {
			sendErrorResponse(conn, connID, err, "malformed scan body")
			return
		}
		transaction, table, err := server.lookup(id, tableOid)
		if err != nil {
			sendErrorResponse(conn, connID, err, "scan failed")
			return
		}
		rows, err := server.scanAll(table, transaction)
		if err != nil {
			sendErrorResponse(conn, connID, err, "scan failed")
			return
		}
		write(conn, connID, encodeOK(encodeScanResponse(rows)))

	case opShutdown:
		slog.Info("server received shutdown request", "conn_id", connID)
		server.Shutdown()

	default:
		sendErrorResponse(conn, connID, fmt.Errorf("server: invalid op code %q", req.opCode), "invalid op code")
	}
}

func (server *Server) handleClient(conn net.Conn) {
	connID := uuid.New().String()
	slog.Info("client connected", "conn_id", connID, "remote", conn.RemoteAddr().String())
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	for {
		select {
		case <-server.shutdown:
			slog.Info("closing connection for shutdown", "conn_id", connID)
			write(conn, connID, encodeOK(nil))
			conn.Close()
			return
		default:
			server.handleRequest(conn, connID)
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		}
	}
}

func (server *Server) listen(group *errgroup.Group) {
	for {
		conn, err := server.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			slog.Error(err.Error(), "msg", "accept failed")
			continue
		}
		group.Go(func() error {
			server.handleClient(conn)
			return nil
		})
	}
}

// Run blocks until Shutdown closes the listener, using an errgroup so
// a connection goroutine's error surfaces instead of being swallowed
// silently.
func (server *Server) Run() error {
	group := &errgroup.Group{}
	group.Go(func() error {
		server.listen(group)
		return nil
	})
	slog.Info("server listening", "addr", server.addr)
	return group.Wait()
}

func (server *Server) Shutdown() {
	slog.Info("shutdown initiated")
	server.shutdownOnce.Do(func() {
		server.listener.Close()
		if err := server.engine.Close(); err != nil {
			slog.Error(err.Error(), "msg", "error while closing storage engine")
		}
		close(server.shutdown)
	})
}
