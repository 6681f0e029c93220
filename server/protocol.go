package server

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kestrel-db/kestrel/diskio"
	"github.com/kestrel-db/kestrel/exec"
	"github.com/kestrel-db/kestrel/tableheap"
)

// Wire protocol: 1-byte op code, 4-byte little-endian body length, then
// the body. Single-letter op codes cover both transaction control
// (BEGIN/COMMIT/ABORT) and table operations (CREATE TABLE/INSERT/
// SCAN/DELETE) plus PING and SHUTDOWN.
const (
	opPing        = 'P'
	opShutdown    = 'X'
	opCreateTable = 'T'
	opBegin       = 'B'
	opCommit      = 'C'
	opAbort       = 'A'
	opInsert      = 'I'
	opDelete      = 'D'
	opScan        = 'S'

	respOK    = 'O'
	respError = 'E'
)

type request struct {
	opCode byte
	body   []byte
}

func readNBytes(reader io.Reader, n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

func readRequest(reader io.Reader) (request, error) {
	opCode, err := readNBytes(reader, 1)
	if err != nil {
		return request{}, err
	}

	lenBytes, err := readNBytes(reader, 4)
	if err != nil {
		return request{}, err
	}
	bodyLen := binary.LittleEndian.Uint32(lenBytes)

	body, err := readNBytes(reader, int(bodyLen))
	if err != nil {
		return request{}, err
	}
	return request{opCode: opCode[0], body: body}, nil
}

func encodeOK(body []byte) []byte {
	out := make([]byte, 1+4+len(body))
	out[0] = respOK
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out
}

func encodeError(err error) []byte {
	message := []byte(err.Error())
	out := make([]byte, 1+4+len(message))
	out[0] = respError
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(message)))
	copy(out[5:], message)
	return out
}

// --- body codecs ---

func decodeUint32(body []byte, offset int) (uint32, int) {
	return binary.LittleEndian.Uint32(body[offset : offset+4]), offset + 4
}

func decodeUint64(body []byte, offset int) (uint64, int) {
	return binary.LittleEndian.Uint64(body[offset : offset+8]), offset + 8
}

func decodeString(body []byte, offset int) (string, int) {
	n, offset := decodeUint32(body, offset)
	return string(body[offset : offset+int(n)]), offset + int(n)
}

// decodeCreateTableBody parses { name string, columns uint32 }.
func decodeCreateTableBody(body []byte) (name string, columns uint32) {
	name, offset := decodeString(body, 0)
	columns, _ = decodeUint32(body, offset)
	return name, columns
}

func encodeCreateTableResponse(oid uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, oid)
	return buf
}

// decodeBeginBody parses { isolation byte }.
func decodeBeginBody(body []byte) (isolation byte) {
	if len(body) < 1 {
		return 0
	}
	return body[0]
}

func encodeBeginResponse(txnID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, txnID)
	return buf
}

// decodeTxnIDBody parses { txn_id uint64 }, used by COMMIT and ABORT.
func decodeTxnIDBody(body []byte) (uint64, error) {
	if len(body) < 8 {
		return 0, fmt.Errorf("server: short body for transaction id")
	}
	id, _ := decodeUint64(body, 0)
	return id, nil
}

// decodeInsertBody parses { txn_id uint64, table_oid uint32, row (self-describing) }.
func decodeInsertBody(body []byte) (txnID uint64, tableOid uint32, row exec.Row, err error) {
	if len(body) < 12 {
		return 0, 0, nil, fmt.Errorf("server: short insert body")
	}
	txnID, offset := decodeUint64(body, 0)
	tableOid, offset = decodeUint32(body, offset)
	row = exec.DecodeRow(tableheap.Tuple(body[offset:]))
	return txnID, tableOid, row, nil
}

func encodeCountResponse(n int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	return buf
}

// decodeDeleteBody parses { txn_id uint64, table_oid uint32, rid (page_id int64, slot uint32) }.
func decodeDeleteBody(body []byte) (txnID uint64, tableOid uint32, rid tableheap.RID, err error) {
	if len(body) < 24 {
		return 0, 0, tableheap.RID{}, fmt.Errorf("server: short delete body")
	}
	txnID, offset := decodeUint64(body, 0)
	tableOid, offset = decodeUint32(body, offset)
	pageID, offset := decodeUint64(body, offset)
	slot, _ := decodeUint32(body, offset)
	return txnID, tableOid, tableheap.RID{PageID: diskio.PageID(pageID), Slot: slot}, nil
}

func encodeRIDResponse(rid tableheap.RID) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rid.PageID))
	binary.LittleEndian.PutUint32(buf[8:12], rid.Slot)
	return buf
}

// decodeScanBody parses { txn_id uint64, table_oid uint32 }.
func decodeScanBody(body []byte) (txnID uint64, tableOid uint32, err error) {
	if len(body) < 12 {
		return 0, 0, fmt.Errorf("server: short scan body")
	}
	txnID, offset := decodeUint64(body, 0)
	tableOid, _ = decodeUint32(body, offset)
	return txnID, tableOid, nil
}

func encodeScanResponse(rows []exec.Row) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(rows)))
	for _, row := range rows {
		buf = append(buf, exec.EncodeRow(row)...)
	}
	return buf
}
