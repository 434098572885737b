package graphstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func getTimeFromProps(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v.UTC()
	case neo4j.LocalDateTime:
		return v.Time().UTC()
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// nodeFromRecord converts the node bound to key into a store Node, moving
// bookkeeping properties onto the struct fields
func nodeFromRecord(record *neo4j.Record, key string, label Label) (Node, error) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return Node{}, fmt.Errorf("record has no node %q", key)
	}
	dbNode, ok := val.(neo4j.Node)
	if !ok {
		return Node{}, fmt.Errorf("record value %q is %T, not a node", key, val)
	}

	rawID, _ := dbNode.Props[PropID].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Node{}, fmt.Errorf("parsing node id %q: %w", rawID, err)
	}

	n := Node{
		Label:     label,
		ID:        id,
		Props:     make(map[string]any, len(dbNode.Props)),
		CreatedAt: getTimeFromProps(dbNode.Props, "created_at"),
		UpdatedAt: getTimeFromProps(dbNode.Props, "updated_at"),
	}
	for k, v := range dbNode.Props {
		switch k {
		case PropID, "created_at", "updated_at":
			continue
		}
		n.Props[k] = v
	}
	return n, nil
}
