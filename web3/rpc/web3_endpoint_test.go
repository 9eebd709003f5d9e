package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
)

// chainIDServer is a JSON-RPC endpoint that only knows eth_chainId and
// eth_blockNumber.
func chainIDServer(t *testing.T, chainID string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = chainID
		case "eth_blockNumber":
			resp["result"] = "0x10"
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddEndpoint(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	good := chainIDServer(t, "0x7a69")
	wrong := chainIDServer(t, "0x1")

	pool := NewWeb3Pool(0)
	c.Assert(pool.AddEndpoint(ctx, good.URL), qt.IsNil)
	c.Assert(pool.ChainID(), qt.Equals, uint64(31337))

	err := pool.AddEndpoint(ctx, wrong.URL)
	c.Assert(err, qt.ErrorMatches, ".*serves chain 1, expected 31337")
	c.Assert(pool.AddEndpoint(ctx, " "), qt.IsNotNil)
	c.Assert(pool.NumberOfEndpoints(false), qt.Equals, 1)

	block, err := pool.Client().BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.Equals, uint64(16))
}
