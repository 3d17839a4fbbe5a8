package domain

// Ordering is a total order over messages. The store removes the minimal
// element first, so "less" means "delivered earlier".
type Ordering int

const (
	// TimestampOrder delivers messages oldest first.
	TimestampOrder Ordering = iota
	// PriorityOrder delivers the highest priority first, oldest first within
	// a priority. Messages without a priority rank below every priority.
	PriorityOrder
)

// OrderingForMode returns the ordering selected by the high priority mode flag.
func OrderingForMode(highPriority bool) Ordering {
	if highPriority {
		return PriorityOrder
	}
	return TimestampOrder
}

// String returns a short name suitable for logs and metric labels.
func (o Ordering) String() string {
	switch o {
	case TimestampOrder:
		return "timestamp"
	case PriorityOrder:
		return "priority"
	default:
		return "unknown"
	}
}

// Compare returns -1 when a must be delivered before b, 1 when after, and 0
// when the ordering does not distinguish them.
func (o Ordering) Compare(a, b *Message) int {
	if o == PriorityOrder {
		if c := comparePriority(a, b); c != 0 {
			return c
		}
	}
	return compareTimestamp(a, b)
}

// Less reports whether a is delivered before b.
func (o Ordering) Less(a, b *Message) bool {
	return o.Compare(a, b) < 0
}

func compareTimestamp(a, b *Message) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case b.Timestamp.Before(a.Timestamp):
		return 1
	default:
		return 0
	}
}

// comparePriority orders by priority descending, absent priority last.
func comparePriority(a, b *Message) int {
	pa, okA := a.PriorityValue()
	pb, okB := b.PriorityValue()
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	case pa > pb:
		return -1
	case pa < pb:
		return 1
	default:
		return 0
	}
}
