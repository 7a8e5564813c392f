package evt

import (
	"encoding/json"
	"time"
)

// Generic commands.
const (
	CmdNew = "+"
	CmdMod = "*"
	CmdDel = "-"
)

// Sig is the event signature. The topic is the resource name and the key the record id.
type Sig struct {
	Top string `json:"top"`
	Key string `json:"key"`
}

// Action is an unpublished event represented by a command string and argument.
// The argument of new records is the record document, of modifications a json patch.
type Action struct {
	Sig
	Cmd string          `json:"cmd"`
	Arg json.RawMessage `json:"arg,omitempty"`
}

// Event is an action published to a ledger with revision and unique id.
type Event struct {
	ID  int64     `json:"id"`
	Rev time.Time `json:"rev"`
	Action
}

// Watch selects the events of a topic after a revision and optionally only for some keys.
type Watch struct {
	Top string    `json:"top"`
	Rev time.Time `json:"rev,omitempty"`
	IDs []string  `json:"ids,omitempty"`
}

// Update is a list of events up to a revision sent to subscribers.
type Update struct {
	Rev time.Time `json:"rev"`
	Evs []*Event  `json:"evs"`
}
