package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Node numbers per binary. Two processes sharing a node number can mint
// the same id in the same millisecond.
const (
	NodeServer int64 = 1
	NodeWorker int64 = 2
	NodeChat   int64 = 9
)

var (
	node    *snowflake.Node
	initErr error
	once    sync.Once
)

// Init sets the node for this process. Only the first call has effect;
// later calls return its result.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
		if initErr != nil {
			initErr = fmt.Errorf("snowflake node %d: %w", nodeID, initErr)
		}
	})
	return initErr
}

// New returns a time-ordered id for a conversation or message. Init must
// have succeeded.
func New() int64 {
	return node.Generate().Int64()
}

// Parse reads an id from a path parameter or request body, where ids travel
// as decimal strings.
func Parse(s string) (int64, error) {
	sid, err := snowflake.ParseString(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	case sid <= 0:
		return 0, fmt.Errorf("invalid id %q: must be positive", s)
	}
	return sid.Int64(), nil
}
