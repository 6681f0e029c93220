package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kestrel-db/kestrel/exec"
	"github.com/kestrel-db/kestrel/tableheap"
	"github.com/kestrel-db/kestrel/txn"
)

type EngineTestSuite struct {
	suite.Suite
}

func (s *EngineTestSuite) newEngine() *StorageEngine {
	path := filepath.Join(s.T().TempDir(), "kestrel_test.db")

	cfg := Config{
		DataFile:              path,
		PoolSize:              32,
		LRUKSize:              2,
		HashHeaderMaxDepth:    9,
		HashDirectoryMaxDepth: 9,
		HashBucketMaxSize:     32,
		GCIntervalSeconds:     3600, // effectively disabled for the test
	}

	e, isNew, err := Open(cfg)
	s.Require().NoError(err)
	s.Require().True(isNew, "expected a fresh data file to report isNewDatabase")
	s.T().Cleanup(func() {
		e.Close()
		os.Remove(path)
	})
	return e
}

func (s *EngineTestSuite) TestOpenReportsNewDatabaseOnlyOnce() {
	path := filepath.Join(s.T().TempDir(), "kestrel_reopen.db")
	cfg := Config{DataFile: path, PoolSize: 16, LRUKSize: 2, GCIntervalSeconds: 3600}

	e1, isNew, err := Open(cfg)
	s.Require().NoError(err)
	s.Require().True(isNew)
	e1.Close()

	e2, isNew, err := Open(cfg)
	s.Require().NoError(err)
	s.False(isNew, "expected reopening an existing data file to report isNewDatabase=false")
	e2.Close()
}

func (s *EngineTestSuite) TestEngineCreateTableAndRunTransaction() {
	e := s.newEngine()

	info, err := e.Catalog().CreateTable("widgets", 1)
	s.Require().NoError(err)

	writer := e.Transactions().Begin(txn.SnapshotIsolation)
	meta := tableheap.TupleMeta{Ts: writer.TempTs()}
	rid, ok := info.Table.InsertTuple(meta, exec.EncodeRow(exec.Row{[]byte("gear")}))
	s.Require().True(ok, "insert failed")
	writer.AppendWriteSet(info.OID, rid)

	_, err = e.Transactions().Commit(writer)
	s.Require().NoError(err)

	meta, ok = info.Table.GetTupleMeta(rid)
	s.Require().True(ok)
	s.Equal(writer.CommitTs(), meta.Ts, "expected tuple ts to be rewritten to commit ts")
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
