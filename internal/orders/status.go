package orders

import "github.com/ariefcatur/go-order-ledger/internal/apperr"

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusShipped        Status = "SHIPPED"
	StatusReceived       Status = "RECEIVED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunding      Status = "REFUNDING"
	StatusRefunded       Status = "REFUNDED"
)

var descriptions = map[Status]string{
	StatusPendingPayment: "pending payment",
	StatusPaid:           "paid",
	StatusShipped:        "shipped",
	StatusReceived:       "received",
	StatusCompleted:      "completed",
	StatusCancelled:      "cancelled",
	StatusRefunding:      "refunding",
	StatusRefunded:       "refunded",
}

func (s Status) Description() string { return descriptions[s] }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := descriptions[st]; !ok {
		return "", apperr.Validationf("unknown order status %q", s)
	}
	return st, nil
}

// StateMachine is a fixed transition graph over order statuses. It is built
// once and never mutated, so one instance is shared by every caller.
type StateMachine struct {
	next map[Status][]Status
}

func NewStateMachine() *StateMachine {
	return &StateMachine{next: map[Status][]Status{
		StatusPendingPayment: {StatusPaid, StatusCancelled},
		StatusPaid:           {StatusShipped, StatusRefunding},
		StatusShipped:        {StatusReceived, StatusRefunding},
		StatusReceived:       {StatusCompleted, StatusRefunding},
		StatusRefunding:      {StatusRefunded},
		StatusCompleted:      {},
		StatusCancelled:      {},
		StatusRefunded:       {},
	}}
}

// Transitions is the process-wide table.
var Transitions = NewStateMachine()

func (m *StateMachine) CanTransition(from, to Status) bool {
	for _, s := range m.next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStates returns a copy of the outgoing set of from.
func (m *StateMachine) NextStates(from Status) []Status {
	out := make([]Status, len(m.next[from]))
	copy(out, m.next[from])
	return out
}

func (m *StateMachine) IsTerminal(s Status) bool {
	if s == "" {
		return false
	}
	return len(m.next[s]) == 0
}

// FindPath returns the shortest chain of legal transitions from start to
// end, both included, or nil when end is unreachable.
func (m *StateMachine) FindPath(start, end Status) []Status {
	if _, ok := m.next[start]; !ok {
		return nil
	}
	if _, ok := m.next[end]; !ok {
		return nil
	}
	if start == end {
		return []Status{start}
	}

	prev := map[Status]Status{start: ""}
	queue := []Status{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range m.next[cur] {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == end {
				var path []Status
				for s := end; s != ""; s = prev[s] {
					path = append([]Status{s}, path...)
				}
				return path
			}
			queue = append(queue, n)
		}
	}
	return nil
}

func CanTransition(from, to Status) bool {
	return Transitions.CanTransition(from, to)
}
