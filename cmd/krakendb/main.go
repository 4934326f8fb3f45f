// Command krakendb is the CLI driver for the audit database engine: it
// generates test data, opens (and if needed constructs) a tree, and prints
// the root, a single-leaf proof chain, or a full dump of node digests.
//
// Usage: krakendb <dbname> [key=<verifier>] [<position>|<hash>|root|dump|gendata]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/krakenfx/auditdb/auditdb"
	"github.com/krakenfx/auditdb/internal/binformat"
)

type mode int

const (
	modeRoot mode = iota
	modePosition
	modeHash
	modeDump
	modeGenTestData
)

func main() {
	os.Exit(run())
}

// run implements main's logic and returns the inverted exit code the source
// program uses: 1 on success, 0 on any error path. This is preserved
// exactly as specified (§6/§9 flag it as likely-buggy but intentional) --
// not because it's good practice, but because inventing a new convention
// here would be a silent, unrequested behavior change.
func run() int {
	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s <dbname> [key=verifier key] [<position>|<hash>|root|dump|gendata]\n", os.Args[0])
		return 0
	}

	dbname := args[0]
	var verifierKey []byte // nil means "no key= flag was given at all"
	m := modeRoot
	var position int
	var hash [32]byte
	var genCount int

	for _, arg := range args[1:] {
		switch {
		case strings.HasPrefix(arg, "key="):
			verifierKey = []byte(strings.TrimPrefix(arg, "key="))
		case arg == "dump":
			m = modeDump
		case arg == "root":
			m = modeRoot
		case arg == "gendata":
			m = modeGenTestData
		case strings.HasPrefix(arg, "gendata="):
			m = modeGenTestData
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "gendata="))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid gendata count: %s\n", arg)
				return 0
			}
			genCount = n
		case len(arg) == 64:
			b, err := hex.DecodeString(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid hash value: %s\n", arg)
				return 0
			}
			copy(hash[:], b)
			m = modeHash
		case arg[0] >= '0' && arg[0] <= '9':
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid position value: %s\n", arg)
				return 0
			}
			position = n
			m = modePosition
		default:
			fmt.Fprintf(os.Stderr, "Unknown option: %s\n", arg)
			return 0
		}
	}

	if m == modeGenTestData {
		if err := genTestData(dbname, genCount); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating data: %v\n", err)
		}
	}

	db, err := auditdb.Open(dbname, verifierKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open DB failed: %v\n", err)
		return 0
	}
	defer db.Close()

	switch m {
	case modeHash:
		nodes, err := db.GetNodesByHash(hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Hash not found\n")
			return 0
		}
		printChain(os.Stdout, nodes)

	case modePosition:
		nodes, err := db.GetNodesByPosition(position)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading tree: %v\n", err)
			return 0
		}
		printChain(os.Stdout, nodes)

	case modeRoot:
		left, right, root, err := db.GetRoot()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading tree: %v\n", err)
			return 0
		}
		fmt.Fprintf(os.Stdout, "Root %d: %x\n", root.Value, root.Digest)
		fmt.Fprintf(os.Stdout, "Left: %x\n", left.Digest)
		fmt.Fprintf(os.Stdout, "Right: %x\n", right.Digest)

	case modeDump:
		if err := db.Dump(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading tree: %v\n", err)
			return 0
		}
	}

	return 1
}

// printChain renders a proof chain leaf-to-root, one line per node, each
// prefixed by its index starting at 0, per §6's position/hash mode format.
func printChain(w *os.File, nodes []binformat.Node) {
	for i, n := range nodes {
		fmt.Fprintf(w, "%d: %x\n", i, n.Digest)
	}
}
