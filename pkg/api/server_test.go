package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/secret-orderbook/pkg/app/book"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/auth"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/crypto"
	"github.com/uhyunpark/secret-orderbook/pkg/relay"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
	"github.com/uhyunpark/secret-orderbook/pkg/telemetry"
)

var (
	factory = common.HexToAddress("0xFA00000000000000000000000000000000000000")
	token2  = common.HexToAddress("0x2200000000000000000000000000000000000000")
	self    = common.HexToAddress("0xB00C000000000000000000000000000000000000")
)

type fixture struct {
	node     *book.Node
	srv      *httptest.Server
	registry *auth.LocalRegistry
	ledger   *crypto.Signer // token1
	alice    *crypto.Signer
	bob      *crypto.Signer

	mu     sync.Mutex
	nonces map[common.Address]uint64
	sent   []msg.CosmosMsg
}

// newBareFixture serves a node that has not been instantiated yet.
func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		registry: auth.NewLocalRegistry(factory, "secret"),
		nonces:   make(map[common.Address]uint64),
	}
	for _, s := range []**crypto.Signer{&f.ledger, &f.alice, &f.bob} {
		*s, err = crypto.GenerateKey()
		require.NoError(t, err)
	}

	f.node = book.NewNode(store, auth.NewGateway(f.registry, nil), book.NodeConfig{
		Self: msg.ContractInfo{Address: self, CodeHash: "book-hash"},
		Dispatcher: relay.DispatcherFunc(func(_ context.Context, msgs []msg.CosmosMsg) error {
			f.mu.Lock()
			f.sent = append(f.sent, msgs...)
			f.mu.Unlock()
			return nil
		}),
	})

	server := NewServer(f.node, Options{Metrics: telemetry.New(), Factory: f.registry})
	ctx, cancel := context.WithCancel(context.Background())
	go server.Hub().Run(ctx)

	f.srv = httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		cancel()
	})
	return f
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t)
	f.instantiate(t)
	return f
}

func (f *fixture) instantiate(t *testing.T) {
	t.Helper()
	_, err := f.node.Instantiate(context.Background(), factory, msg.InitMsg{
		FactoryAddress: factory,
		FactoryKey:     "secret",
		Token1Address:  f.ledger.Address(),
		Token2Address:  token2,
	})
	require.NoError(t, err)
}

// transfers counts dispatched transfer messages.
func (f *fixture) transfers(t *testing.T) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		var body msg.Snip20Msg
		require.NoError(t, json.Unmarshal(m.Msg, &body))
		if body.Transfer != nil {
			n++
		}
	}
	return n
}

// seal signs raw as signer with the signer's next nonce.
func (f *fixture) seal(t *testing.T, signer *crypto.Signer, raw []byte) crypto.Envelope {
	t.Helper()
	f.mu.Lock()
	f.nonces[signer.Address()]++
	nonce := f.nonces[signer.Address()]
	f.mu.Unlock()
	env, err := crypto.Seal(signer, nonce, raw)
	require.NoError(t, err)
	return env
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) sealHandle(t *testing.T, signer *crypto.Signer, m msg.HandleMsg) crypto.Envelope {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return f.seal(t, signer, raw)
}

func (f *fixture) execute(t *testing.T, signer *crypto.Signer, m msg.HandleMsg) *http.Response {
	t.Helper()
	return f.post(t, "/api/v1/execute", f.sealHandle(t, signer, m))
}

func depositMsg(t *testing.T, owner common.Address, amount, price uint64) msg.HandleMsg {
	t.Helper()
	inner, err := msg.EncodeInner(msg.HandleMsg{CreateLimitOrder: &msg.CreateLimitOrder{
		Side:  msg.Bid,
		Price: uint256.NewInt(price),
	}})
	require.NoError(t, err)
	return msg.HandleMsg{Receive: &msg.Receive{
		Sender: owner,
		From:   owner,
		Amount: uint256.NewInt(amount),
		Msg:    inner,
	}}
}

func peekQuery(owner common.Address, key string) msg.QueryMsg {
	return msg.QueryMsg{GetBookPeek: &msg.GetBookPeek{Credentials: msg.Credentials{Owner: owner, ViewKey: key}}}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["initialized"])
}

func TestExecuteAndQueryFlow(t *testing.T) {
	f := newFixture(t)
	key, err := auth.NewViewKey()
	require.NoError(t, err)
	f.registry.SetViewKey(f.alice.Address(), key)

	resp := f.execute(t, f.ledger, depositMsg(t, f.alice.Address(), 100, 50))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), key))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var peek msg.BookPeek
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&peek))
	require.NotNil(t, peek.BidPrice)
	assert.Equal(t, uint64(50), peek.BidPrice.Uint64())
	assert.Nil(t, peek.AskPrice)

	resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ExecuteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "committed", out.Status)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, f.ledger.Address(), out.Messages[0].ContractAddr)

	resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteRejectsForgedSender(t *testing.T) {
	f := newFixture(t)

	env := f.sealHandle(t, f.bob, depositMsg(t, f.bob.Address(), 100, 50))
	env.Sender = f.ledger.Address() // bob pretends to be the ledger

	resp := f.post(t, "/api/v1/execute", env)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// an honest deposit signed by a non-ledger address is an unknown asset
	resp = f.execute(t, f.bob, depositMsg(t, f.bob.Address(), 100, 50))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteBadRequests(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/execute", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/v1/execute", map[string]string{"sender": f.alice.Address().Hex()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/v1/execute", f.seal(t, f.alice, []byte(`{"cancel_everything":{}}`)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryUnauthorized(t *testing.T) {
	f := newFixture(t)
	resp := f.execute(t, f.ledger, depositMsg(t, f.alice.Address(), 100, 50))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/api/v1/query", msg.QueryMsg{GetOrder: &msg.GetOrder{
		Credentials: msg.Credentials{Owner: f.alice.Address(), ViewKey: "guess"},
	}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotContains(t, body.Error, "100")

	resp = f.post(t, "/api/v1/query", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/api/v1/query", msg.QueryMsg{GetRegistration: &msg.GetRegistration{}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{msg.ErrUnauthorized, http.StatusUnauthorized},
		{msg.ErrNoActiveOrder, http.StatusNotFound},
		{msg.ErrUnknownAsset, http.StatusBadRequest},
		{msg.ErrDuplicateOwner, http.StatusBadRequest},
		{msg.ErrNotInitialized, http.StatusServiceUnavailable},
		{msg.ErrStaleNonce, http.StatusConflict},
		{auth.ErrEmptyViewKey, http.StatusBadRequest},
		{msg.ErrCorruptState, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWebSocketBookFeed(t *testing.T) {
	f := newFixture(t)
	key, err := auth.NewViewKey()
	require.NoError(t, err)
	f.registry.SetViewKey(f.alice.Address(), key)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Owner: f.alice.Address(), ViewKey: "nope"}))
	got := readWS(t, conn)
	assert.Equal(t, "error", got["type"])

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Owner: f.alice.Address(), ViewKey: key}))
	got = readWS(t, conn)
	assert.Equal(t, "book_peek", got["type"])
	assert.Nil(t, got["bid_price"])

	_, err = f.node.Execute(context.Background(), f.ledger.Address(), depositMsg(t, f.alice.Address(), 10, 70))
	require.NoError(t, err)

	got = readWS(t, conn)
	assert.Equal(t, "book_peek", got["type"])
	assert.Equal(t, "70", got["bid_price"])
}

func TestReplayedDepositIsRejected(t *testing.T) {
	f := newFixture(t)

	deposit := f.sealHandle(t, f.ledger, depositMsg(t, f.alice.Address(), 100, 50))
	resp := f.post(t, "/api/v1/execute", deposit)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.transfers(t))

	for i := 0; i < 3; i++ {
		resp = f.post(t, "/api/v1/execute", deposit)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Equal(t, 1, f.transfers(t))

	// nonces from an earlier request stay spent
	older, err := crypto.Seal(f.ledger, 1, deposit.Msg)
	require.NoError(t, err)
	resp = f.post(t, "/api/v1/execute", older)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.post(t, "/api/v1/execute", f.sealHandle(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}}))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRejectedDepositCannotBeReplayedLater(t *testing.T) {
	f := newFixture(t)

	resp := f.execute(t, f.ledger, depositMsg(t, f.alice.Address(), 100, 50))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// refused while alice's first order rests
	second := f.sealHandle(t, f.ledger, depositMsg(t, f.alice.Address(), 40, 60))
	resp = f.post(t, "/api/v1/execute", second)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/api/v1/execute", second)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.execute(t, f.alice, msg.HandleMsg{WithdrawOrder: &msg.WithdrawOrder{}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, f.transfers(t))
}

func TestFactoryViewingKeyThenQuery(t *testing.T) {
	f := newFixture(t)
	resp := f.execute(t, f.ledger, depositMsg(t, f.alice.Address(), 100, 50))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), ""))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	create := f.seal(t, f.alice, []byte(`{"create_viewing_key":{"entropy":"coffee"}}`))
	resp = f.post(t, "/api/v1/factory/execute", create)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ans msg.FactoryAnswer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ans))
	require.NotNil(t, ans.CreateViewingKey)
	key := ans.CreateViewingKey.Key

	resp = f.post(t, "/api/v1/query", msg.QueryMsg{GetOrder: &msg.GetOrder{
		Credentials: msg.Credentials{Owner: f.alice.Address(), ViewKey: key},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), key))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// a captured create request cannot mint a key for someone else
	resp = f.post(t, "/api/v1/factory/execute", create)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.post(t, "/api/v1/factory/execute", f.seal(t, f.alice, []byte(`{"set_viewing_key":{"key":"rotated"}}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), key))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), "rotated"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// bob's key is only ever his own
	resp = f.post(t, "/api/v1/factory/execute", f.seal(t, f.bob, []byte(`{"set_viewing_key":{"key":"rotated"}}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.post(t, "/api/v1/query", peekQuery(f.alice.Address(), "rotated"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/api/v1/factory/execute", f.seal(t, f.bob, []byte(`{"set_viewing_key":{"key":""}}`)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketBeforeInit(t *testing.T) {
	f := newBareFixture(t)
	key, err := auth.NewViewKey()
	require.NoError(t, err)
	f.registry.SetViewKey(f.alice.Address(), key)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Owner: f.alice.Address(), ViewKey: key}))
	got := readWS(t, conn)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, errBookUnavailable, got["error"])

	f.instantiate(t)

	require.NoError(t, conn.WriteJSON(WSRequest{Op: "subscribe", Owner: f.alice.Address(), ViewKey: key}))
	got = readWS(t, conn)
	assert.Equal(t, "book_peek", got["type"])
}
