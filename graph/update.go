package graph

import "fmt"

// Field is a single value with the state it was written at. Conflicting
// writes to the same field are resolved by the higher state, ties by the
// lexically greater value.
type Field struct {
	Value interface{} `json:"v"`
	State int64       `json:"s"`
}

// Update is the unit of replication between stores
type Update struct {
	Id        string           `json:"id"`
	Origin    string           `json:"origin"`
	Path      string           `json:"path"`
	Fields    map[string]Field `json:"fields,omitempty"`
	Tombstone int64            `json:"tombstone,omitempty"`
}

// Transport replicates local updates to other stores
type Transport interface {
	Broadcast(u Update) error
	Connect(endpoint string) error
}

func wins(in, cur Field) bool {
	if in.State != cur.State {
		return in.State > cur.State
	}
	return fmt.Sprint(in.Value) > fmt.Sprint(cur.Value)
}
