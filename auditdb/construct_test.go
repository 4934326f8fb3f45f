package auditdb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/fastrand"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// writeDataFile writes a well-formed .data file holding values, for use as
// Construct's input across this package's tests.
func writeDataFile(t *testing.T, path string, values []int64) {
	t.Helper()
	f, err := binformat.CreateExclusive(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	header := binformat.Header{Signature: binformat.DataSignature, NumRecords: uint32(len(values))}
	headerBuf := make([]byte, binformat.HeaderSize)
	header.Encode(headerBuf)
	if err := f.WriteAt(0, headerBuf); err != nil {
		t.Fatal(err)
	}

	recordsBuf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(recordsBuf[i*8:i*8+8], uint64(v))
	}
	if err := f.WriteAt(int64(binformat.HeaderSize), recordsBuf); err != nil {
		t.Fatal(err)
	}
}

// fixedTestValues mirrors the command line tool's scenario S1 seed vector:
// eight balances summing to 23000, including one negative value.
var fixedTestValues = []int64{1000, 2000, 3000, 5000, -2000, 8000, 4000, 2000}

func TestConstructAndOpenFixedVector(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "s1")
	writeDataFile(t, dataPath(dbname), fixedTestValues)

	db, err := Open(dbname, []byte("verifier"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if db.NumRecords() != len(fixedTestValues) {
		t.Fatalf("NumRecords() = %d, want %d", db.NumRecords(), len(fixedTestValues))
	}

	_, _, root, err := db.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	var want int64
	for _, v := range fixedTestValues {
		want += v
	}
	if root.Value != want {
		t.Fatalf("root value = %d, want %d", root.Value, want)
	}
}

func TestConstructIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	key := []byte("samekey")

	dbA := filepath.Join(dir, "a")
	writeDataFile(t, dataPath(dbA), fixedTestValues)
	if err := Construct(dataPath(dbA), treePath(dbA), key); err != nil {
		t.Fatal(err)
	}

	dbB := filepath.Join(dir, "b")
	writeDataFile(t, dataPath(dbB), fixedTestValues)
	if err := Construct(dataPath(dbB), treePath(dbB), key); err != nil {
		t.Fatal(err)
	}

	treeA, err := os.ReadFile(treePath(dbA))
	if err != nil {
		t.Fatal(err)
	}
	treeB, err := os.ReadFile(treePath(dbB))
	if err != nil {
		t.Fatal(err)
	}
	if string(treeA) != string(treeB) {
		t.Fatal("two constructions of identical data+key produced different tree files")
	}
}

func TestConstructIsSensitiveToVerifierKey(t *testing.T) {
	dir := t.TempDir()

	dbA := filepath.Join(dir, "a")
	writeDataFile(t, dataPath(dbA), fixedTestValues)
	if err := Construct(dataPath(dbA), treePath(dbA), []byte("key-one")); err != nil {
		t.Fatal(err)
	}

	dbB := filepath.Join(dir, "b")
	writeDataFile(t, dataPath(dbB), fixedTestValues)
	if err := Construct(dataPath(dbB), treePath(dbB), []byte("key-two")); err != nil {
		t.Fatal(err)
	}

	fA, err := binformat.OpenRead(treePath(dbA))
	if err != nil {
		t.Fatal(err)
	}
	defer fA.Close()
	fB, err := binformat.OpenRead(treePath(dbB))
	if err != nil {
		t.Fatal(err)
	}
	defer fB.Close()

	rootBufA := make([]byte, binformat.NodeSize)
	if err := fA.ReadAt(int64(binformat.HeaderSize)+int64(2*len(fixedTestValues)-2)*int64(binformat.NodeSize), rootBufA); err != nil {
		t.Fatal(err)
	}
	rootBufB := make([]byte, binformat.NodeSize)
	if err := fB.ReadAt(int64(binformat.HeaderSize)+int64(2*len(fixedTestValues)-2)*int64(binformat.NodeSize), rootBufB); err != nil {
		t.Fatal(err)
	}

	rootA, err := binformat.DecodeNode(rootBufA)
	if err != nil {
		t.Fatal(err)
	}
	rootB, err := binformat.DecodeNode(rootBufB)
	if err != nil {
		t.Fatal(err)
	}

	if rootA.Value != rootB.Value {
		t.Fatalf("root values differ across keys: %d vs %d (should be key-independent)", rootA.Value, rootB.Value)
	}
	if rootA.Digest == rootB.Digest {
		t.Fatal("root digests identical across distinct verifier keys")
	}
}

func TestConstructWithNilKeyFails(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "nokey")
	writeDataFile(t, dataPath(dbname), fixedTestValues)

	if err := Construct(dataPath(dbname), treePath(dbname), nil); !errors.Contains(err, ErrMissingVerifierKey) {
		t.Fatalf("got %v, want ErrMissingVerifierKey", err)
	}
}

func TestConstructWithEmptyNonNilKeySucceeds(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "emptykey")
	writeDataFile(t, dataPath(dbname), fixedTestValues)

	if err := Construct(dataPath(dbname), treePath(dbname), []byte{}); err != nil {
		t.Fatalf("construction with non-nil empty key should succeed, got %v", err)
	}
}

func TestConstructRejectsNonPowerOfTwoRecordCount(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "oddcount")
	writeDataFile(t, dataPath(dbname), []int64{1, 2, 3})

	if err := Construct(dataPath(dbname), treePath(dbname), []byte("key")); !errors.Contains(err, ErrMalformedData) {
		t.Fatalf("got %v, want ErrMalformedData", err)
	}
}

func TestConstructRejectsExistingTreeFile(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "exists")
	writeDataFile(t, dataPath(dbname), fixedTestValues)
	if err := Construct(dataPath(dbname), treePath(dbname), []byte("key")); err != nil {
		t.Fatal(err)
	}
	if err := Construct(dataPath(dbname), treePath(dbname), []byte("key")); !errors.Contains(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

// TestConstructPreservesLeafOrderCrossCheck wires CrossCheckLeafOrder into
// an actual Construct/Open round trip: it folds the input values
// independently of the tree's SHA-256 contract, then reads the leaves back
// off disk in position order and folds those too. Agreement between the two
// digests is only possible if Construct read and laid out every leaf value
// in the exact order it was given, which neither GetRoot (a single summed
// int64) nor a single leaf lookup is precise enough to catch -- a
// transposition of two leaves, for instance, would still sum to the right
// root.
func TestConstructPreservesLeafOrderCrossCheck(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "crosscheck")

	n := 16
	values := make([]int64, n)
	for i := range values {
		values[i] = fastrand.Int63n(1_000_000) - 500_000
	}
	writeDataFile(t, dataPath(dbname), values)

	want := CrossCheckLeafOrder(values)

	db, err := Open(dbname, []byte("crosscheck-key"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	readBack := make([]int64, n)
	for i := range readBack {
		chain, err := db.GetNodesByPosition(i)
		if err != nil {
			t.Fatal(err)
		}
		readBack[i] = chain[0].Value
	}

	got := CrossCheckLeafOrder(readBack)
	if got != want {
		t.Fatal("cross-check digest over the tree's on-disk leaf order does not match the input order")
	}
}

// TestConstructLeafTranspositionFailsCrossCheck confirms the converse: two
// vectors that differ only by swapping their first two leaves both
// construct, and although they have the same sum (so GetRoot's summed value
// could not tell them apart), their cross-check digests differ.
func TestConstructLeafTranspositionFailsCrossCheck(t *testing.T) {
	dir := t.TempDir()

	original := []int64{10, 20, 30, 40}
	transposed := []int64{20, 10, 30, 40}

	dbA := filepath.Join(dir, "orig")
	writeDataFile(t, dataPath(dbA), original)
	if err := Construct(dataPath(dbA), treePath(dbA), []byte("key")); err != nil {
		t.Fatal(err)
	}
	dbB := filepath.Join(dir, "transposed")
	writeDataFile(t, dataPath(dbB), transposed)
	if err := Construct(dataPath(dbB), treePath(dbB), []byte("key")); err != nil {
		t.Fatal(err)
	}

	if CrossCheckLeafOrder(original) == CrossCheckLeafOrder(transposed) {
		t.Fatal("cross-check digest did not distinguish a leaf transposition")
	}
}

func TestConstructWithRandomData(t *testing.T) {
	dir := t.TempDir()
	dbname := filepath.Join(dir, "random")

	n := 16
	values := make([]int64, n)
	var want int64
	for i := range values {
		var buf [8]byte
		fastrand.Read(buf[:])
		v := int64(binary.LittleEndian.Uint64(buf[:])) % 1_000_000
		values[i] = v
		want += v
	}
	writeDataFile(t, dataPath(dbname), values)

	db, err := Open(dbname, []byte("rand-key"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, _, root, err := db.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root.Value != want {
		t.Fatalf("root value = %d, want %d", root.Value, want)
	}
}
