// Package rangeserver implements the master's outbound RPC surface to
// range servers (spec §6): load_range, update_schema, drop_table,
// get_statistics, each a fire-and-collect fan-out across a set of
// locations. Grounded on the teacher's pkg/worker.go client/executor-loop
// shape, adapted from its grpc.ClientConn usage to internal/rpc.Transport
// per the dropped-grpc-dependency decision (DESIGN.md).
package rangeserver

import (
	"sync"
	"time"

	"github.com/hypertable/master/internal/rpc"
)

// AddressResolver maps a location (proxy name) to its dialable address.
// internal/master wires this to the registry's FindByLocation lookup.
type AddressResolver interface {
	Addr(location string) (string, bool)
}

// EndRowMarker sorts after every real row, marking a range's open end
// (spec §3: "Range spec").
const EndRowMarker = "\xff\xff"

// Client is the master's handle to the range-server outbound surface.
type Client struct {
	Transport rpc.Transport
	Resolve   AddressResolver
	Timeout   time.Duration
	TestMode  bool
}

func New(transport rpc.Transport, resolve AddressResolver, timeout time.Duration) *Client {
	return &Client{Transport: transport, Resolve: resolve, Timeout: timeout}
}

// LoadRangeRequest is the payload for the load_range outbound RPC.
type LoadRangeRequest struct {
	TableID          string
	StartRowExclusive string
	EndRowInclusive   string
	Generation        int32
}

// LoadRangeReply carries the outcome, including the two "treat as success"
// error kinds the spec names (§4.3/§7): RANGE_ALREADY_LOADED and
// TABLE_DROPPED both mean the range is already in the desired state.
type LoadRangeReply struct {
	Code    int32
	Message string
}

// Result is one location's outcome from a fan-out call (spec §6: "a
// vector of (location, error, message)").
type Result struct {
	Location string
	Err      error
	Message  string
}

// LoadRange issues load_range to a single location, used by CreateTable
// and MoveRange's LOAD_RANGE state handlers.
func (c *Client) LoadRange(location string, req LoadRangeRequest) (*LoadRangeReply, error) {
	if c.TestMode {
		return &LoadRangeReply{}, nil
	}

	addr, ok := c.Resolve.Addr(location)
	if !ok {
		return nil, ErrUnresolvedLocation
	}

	var reply LoadRangeReply
	err := c.Transport.Call(addr, "RangeServer.LoadRange", &req, &reply, c.Timeout)
	return &reply, err
}

// FanOutRequest names one outbound method and its argument, shared across
// update_schema/drop_table/get_statistics calls that must reach a set of
// locations in parallel.
type FanOutRequest struct {
	Method string
	Args   interface{}
}

// FanOut calls method against every location in parallel, waiting for
// every reply or timeout, and returns one Result per location (spec §6).
func (c *Client) FanOut(locations []string, method string, argsFor func(location string) interface{}) []Result {
	results := make([]Result, len(locations))
	var wg sync.WaitGroup
	wg.Add(len(locations))

	for i, loc := range locations {
		go func(i int, loc string) {
			defer wg.Done()
			results[i] = c.call(loc, method, argsFor(loc))
		}(i, loc)
	}
	wg.Wait()
	return results
}

func (c *Client) call(location, method string, args interface{}) Result {
	if c.TestMode {
		return Result{Location: location}
	}

	addr, ok := c.Resolve.Addr(location)
	if !ok {
		return Result{Location: location, Err: ErrUnresolvedLocation}
	}

	var reply LoadRangeReply
	err := c.Transport.Call(addr, method, args, &reply, c.Timeout)
	return Result{Location: location, Err: err, Message: reply.Message}
}

// UpdateSchema fans out a schema update to every location serving table.
func (c *Client) UpdateSchema(locations []string, tableID, schema string) []Result {
	return c.FanOut(locations, "RangeServer.UpdateSchema", func(string) interface{} {
		return &struct {
			TableID string
			Schema  string
		}{tableID, schema}
	})
}

// DropTable fans out a drop-table request to every location serving table.
func (c *Client) DropTable(locations []string, tableID string) []Result {
	return c.FanOut(locations, "RangeServer.DropTable", func(string) interface{} {
		return &struct{ TableID string }{tableID}
	})
}

// GetStatistics fans out a statistics request, used by GatherStatistics.
func (c *Client) GetStatistics(locations []string) []Result {
	return c.FanOut(locations, "RangeServer.GetStatistics", func(string) interface{} {
		return &struct{}{}
	})
}
