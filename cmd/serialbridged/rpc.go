package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/lattice-iot/serialbridge/internal/toolserver"
)

// rpcRequest is a single newline-delimited JSON-RPC 2.0 request. Batching,
// notifications (no "id"), and custom error codes beyond the four tool
// methods are out of scope — this loop only needs to make the tool
// surface callable end to end over stdio.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcLoop reads one JSON-RPC request per line from r and writes one
// response per line to w, dispatching to the four toolserver.Server
// methods named in §6. It runs until r returns io.EOF or ctx is done.
func rpcLoop(ctx context.Context, r io.Reader, w io.Writer, srv *toolserver.Server, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}

		resp := dispatch(ctx, srv, req)
		resp.JSONRPC = "2.0"
		resp.ID = req.ID
		if err := enc.Encode(resp); err != nil {
			logger.Error("failed to write rpc response", "error", err)
			return err
		}
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, srv *toolserver.Server, req rpcRequest) rpcResponse {
	switch req.Method {
	case "list_ports":
		result, err := srv.ListPorts(ctx)
		return toResponse(result, err)

	case "configure_connection":
		var params toolserver.ConfigureConnectionRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(-32602, err)
		}
		result, err := srv.ConfigureConnection(ctx, params)
		return toResponse(result, err)

	case "send_data":
		var params toolserver.SendDataRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(-32602, err)
		}
		result, err := srv.SendData(ctx, params)
		return toResponse(result, err)

	case "read_async_messages":
		result, err := srv.ReadAsyncMessages(ctx)
		return toResponse(result, err)

	default:
		return rpcResponse{Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
}

func toResponse(result any, err error) rpcResponse {
	if err != nil {
		return errResponse(-32000, err)
	}
	return rpcResponse{Result: result}
}

func errResponse(code int, err error) rpcResponse {
	return rpcResponse{Error: &rpcError{Code: code, Message: err.Error()}}
}
