// Package messaging holds the broker-independent half of the inbound
// adapter: the route table and the command handler with its commit
// decision. Transports in sibling packages carry bytes to and from it.
package messaging

const (
	RouteReserveStock  = "reserve-stock"
	RouteReleaseStock  = "release-stock"
	RouteStockReserved = "stock-reserved"

	deadLetterSuffix = ".dead"
)

// Route binds a logical message name to a queue. The routing key is the
// queue name.
type Route struct {
	Name       string
	Queue      string
	RoutingKey string
}

// Topology describes the exchange and routes the service uses. Build it once
// at startup and share the pointer.
type Topology struct {
	exchange string
	reserve  Route
	release  Route
	outcome  Route
}

func NewTopology(exchange string) *Topology {
	return &Topology{
		exchange: exchange,
		reserve:  route(RouteReserveStock),
		release:  route(RouteReleaseStock),
		outcome:  route(RouteStockReserved),
	}
}

func route(name string) Route {
	return Route{Name: name, Queue: name, RoutingKey: name}
}

func (t *Topology) Exchange() string { return t.exchange }
func (t *Topology) Reserve() Route { return t.reserve }
func (t *Topology) Release() Route { return t.release }
func (t *Topology) Outcome() Route { return t.outcome }

// Inbound lists the routes the service consumes.
func (t *Topology) Inbound() []Route {
	return []Route{t.reserve, t.release}
}

// All lists every route, inbound first.
func (t *Topology) All() []Route {
	return []Route{t.reserve, t.release, t.outcome}
}

// DeadLetterQueue names the parking queue for messages from queue that can never
// be processed.
func DeadLetterQueue(queue string) string {
	return queue + deadLetterSuffix
}
