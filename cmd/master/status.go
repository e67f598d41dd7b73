package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/hypertable/master/internal/operation"
	"github.com/hypertable/master/internal/operr"
	"github.com/hypertable/master/internal/rpc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running master for its status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "127.0.0.1:15865", "Master RPC address")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout := 5 * time.Second

	transport := rpc.GobTransport{}

	var reply rpc.Reply
	if err := transport.Call(addr, "RPCService.Call", rpc.Request{Command: rpc.Status}, &reply, timeout); err != nil {
		return fmt.Errorf("call master: %w", err)
	}
	if reply.Code != operr.OK {
		return fmt.Errorf("master returned %s: %s", reply.Code, reply.Message)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var fetch rpc.Reply
		err := transport.Call(addr, "RPCService.Call", rpc.Request{
			Command: rpc.FetchResult,
			Payload: mustGobEncode(fetchResultArgs{OperationID: reply.OperationID}),
		}, &fetch, timeout)
		if err != nil {
			return fmt.Errorf("fetch result: %w", err)
		}
		if fetch.Pending {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if fetch.Code != operr.OK {
			return fmt.Errorf("status failed: %s: %s", fetch.Code, fetch.Message)
		}

		status := operation.NewStatus(reply.OperationID)
		if err := status.DecodeResult(fetch.Result); err != nil {
			return fmt.Errorf("decode status result: %w", err)
		}
		fmt.Printf("Connected range servers: %d\n", status.ConnectedServers)
		return nil
	}
	return fmt.Errorf("timed out waiting for status result")
}

// fetchResultArgs mirrors internal/dispatch.FetchResultArgs; duplicated
// here rather than imported since the CLI only ever talks to the master
// over the wire, the same way a range server or client library would.
type fetchResultArgs struct {
	OperationID int64
}

func mustGobEncode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
