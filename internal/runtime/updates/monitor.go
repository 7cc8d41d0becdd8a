package updates

// Monitor reports the progress of one view-update request executed by the
// native shell.
type Monitor struct {
	ID                string `json:"id,omitempty"`
	NodeID            string `json:"nodeId,omitempty"`
	RequestSequence   int64  `json:"requestSequence"`
	ExecutionFinished bool   `json:"executionFinished"`
	ResponseAvailable bool   `json:"responseAvailable"`
	ExecutionFailed   bool   `json:"executionFailed"`
	Cancelled         bool   `json:"cancelled"`
	Response          any    `json:"response,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

// Terminal reports whether no further monitor updates are expected.
func (m *Monitor) Terminal() bool {
	if m == nil {
		return false
	}
	return m.ExecutionFailed || m.Cancelled || (m.ExecutionFinished && m.ResponseAvailable)
}

func (m *Monitor) clone() *Monitor {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Resolvable is a view-update request awaiting a response or a terminal
// monitor state.
type Resolvable struct {
	Sequence        int64    `json:"sequence"`
	NodeID          string   `json:"nodeId"`
	RequestSequence int64    `json:"requestSequence"`
	Monitor         *Monitor `json:"monitor"`
}

// ResponseContainer carries a shell response back to the view that asked
// for it. Sequence is the queue-assigned sequence of the request.
type ResponseContainer struct {
	Sequence        int64  `json:"sequence"`
	NodeID          string `json:"nodeId,omitempty"`
	RequestSequence int64  `json:"requestSequence"`
	Response        any    `json:"response,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ShellRequest is what the native shell receives for each view update.
type ShellRequest struct {
	NodeID          string `json:"nodeId"`
	Sequence        int64  `json:"sequence"`
	RequestSequence int64  `json:"requestSequence"`
	Request         any    `json:"request"`
}
