package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"gitlab.com/NebulousLabs/fastrand"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// fixedTestData is the specification's seed vector (scenario S1): eight
// balances summing to 23000, including one negative value to exercise the
// negative-value diagnostic.
var fixedTestData = []int64{1000, 2000, 3000, 5000, -2000, 8000, 4000, 2000}

// genTestData writes dbname.data, defaulting to the fixed S1 vector, or (if
// n > 0) n random signed-64 balances generated with fastrand. It then
// removes any stale dbname.tree so the next Open regenerates it from the
// fresh data.
//
// Grounded on krakendb.cpp's GenTestData: the same O_CREAT|O_EXCL create of
// the .data file and unconditional unlink of a stale .tree file.
func genTestData(dbname string, n int) error {
	values := fixedTestData
	if n > 0 {
		values = make([]int64, n)
		for i := range values {
			var buf [8]byte
			fastrand.Read(buf[:])
			values[i] = int64(binary.LittleEndian.Uint64(buf[:]))
		}
	}

	path := dbname + ".data"
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("could not create file %s: %w", path, err)
	}

	header := binformat.Header{Signature: binformat.DataSignature, NumRecords: uint32(len(values))}
	headerBuf := make([]byte, binformat.HeaderSize)
	header.Encode(headerBuf)

	recordsBuf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(recordsBuf[i*8:i*8+8], uint64(v))
	}

	if _, err := f.Write(headerBuf); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("could not write to file %s: %w", path, err)
	}
	if _, err := f.Write(recordsBuf); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("could not write to file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	// Delete tree file so the tree can be regenerated from the new data.
	os.Remove(dbname + ".tree")
	return nil
}
