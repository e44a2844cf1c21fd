package router

// ConnState is the mutable slice of spec.md §4's Connection record that
// the router reads and updates on every dispatch: authentication status,
// identity, and the single room a connection currently holds. It is
// owned by C10 but mutated only from within that connection's own
// inbound loop, so frames for one connection are processed strictly in
// order and no lock is needed across the fields here (spec.md §5's
// per-connection FIFO).
type ConnState struct {
	ConnectionID  string
	RemoteAddr    string
	Authenticated bool
	UserID        string
	Username      string
	RoomID        string
	RoomName      string
}

// Sender is the subset of C10's Connection the router needs in order to
// deliver a direct response to the frame's originating socket. Fan-out to
// other sockets never goes through Sender — it goes through C6, with C10
// subscribing and pushing to local sockets (spec.md §4.10/§4.11).
type Sender interface {
	Send(v interface{}) error
}
