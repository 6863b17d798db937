package domain

// DeliveryStatus is the per-recipient outcome of a send. A Backpressured
// or Unreachable recipient never aborts delivery to the others.
type DeliveryStatus int

const (
	Delivered DeliveryStatus = iota
	Unreachable
	Backpressured
)

func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Unreachable:
		return "unreachable"
	case Backpressured:
		return "backpressured"
	default:
		return "unknown"
	}
}
