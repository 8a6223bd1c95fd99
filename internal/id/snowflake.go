package id

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator issues time-ordered unique int64 identifiers.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for the given node (0-1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) New() int64 {
	return g.node.Generate().Int64()
}
