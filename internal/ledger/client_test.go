package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/signer"
)

// stubSigner echoes the unsigned blob back with a marker, or fails.
type stubSigner struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubSigner) Address() string { return "0x1111111111111111111111111111111111111111" }

func (s *stubSigner) SignTransaction(ctx context.Context, unsignedTx string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "signed:" + unsignedTx, nil
}

// fakeLedger is an httptest transaction service covering build and
// broadcast endpoints.
type fakeLedger struct {
	buildStatus     int
	buildResponse   map[string]any
	broadcastStatus int
	broadcastBody   map[string]any

	mu            sync.Mutex
	lastBuild     json.RawMessage
	lastBroadcast map[string]any
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	return &fakeLedger{
		buildStatus:     http.StatusOK,
		buildResponse:   map[string]any{"unsignedTransaction": "0xdeadbeef"},
		broadcastStatus: http.StatusOK,
		broadcastBody: map[string]any{
			"status": "SUCCESS",
			"data":   map[string]any{"contractId": "ct_fake_1"},
		},
	}
}

func (f *fakeLedger) serve() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(deployPath, f.handleBuild)
	mux.HandleFunc(fundPath, f.handleBuild)
	mux.HandleFunc(broadcastPath, f.handleBroadcast)
	return httptest.NewServer(mux)
}

func (f *fakeLedger) handleBuild(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&raw)
	f.mu.Lock()
	f.lastBuild = raw
	f.mu.Unlock()

	w.WriteHeader(f.buildStatus)
	_ = json.NewEncoder(w).Encode(f.buildResponse)
}

func (f *fakeLedger) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastBroadcast = body
	f.mu.Unlock()

	w.WriteHeader(f.broadcastStatus)
	_ = json.NewEncoder(w).Encode(f.broadcastBody)
}

func testPayload() InitializePayload {
	return InitializePayload{
		Title:           "test",
		Client:          "0x1111111111111111111111111111111111111111",
		ServiceProvider: "0x2222222222222222222222222222222222222222",
		PlatformAddress: "0x3333333333333333333333333333333333333333",
		Amount:          "300",
		ReleaseSigner:   "0x4444444444444444444444444444444444444444",
		DisputeResolver: "0x5555555555555555555555555555555555555555",
		Issuer:          "0x6666666666666666666666666666666666666666",
		Milestones:      []MilestonePayload{{Description: "all", Amount: "300"}},
	}
}

func TestInitializeEscrow_Pipeline(t *testing.T) {
	fake := newFakeLedger(t)
	srv := fake.serve()
	defer srv.Close()

	sig := &stubSigner{}
	client := New(srv.URL, sig)

	contractID, err := client.InitializeEscrow(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("InitializeEscrow failed: %v", err)
	}
	if contractID != "ct_fake_1" {
		t.Errorf("contract id = %q", contractID)
	}
	if sig.calls != 1 {
		t.Errorf("signer called %d times", sig.calls)
	}

	// Broadcast must carry the signed blob and require a return value.
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.lastBroadcast["signedTx"]; got != "signed:0xdeadbeef" {
		t.Errorf("signedTx = %v", got)
	}
	if got := fake.lastBroadcast["returnValueIsRequired"]; got != true {
		t.Errorf("returnValueIsRequired = %v", got)
	}
}

func TestInitializeEscrow_BuildFailure(t *testing.T) {
	fake := newFakeLedger(t)
	fake.buildStatus = http.StatusBadRequest
	fake.buildResponse = map[string]any{"message": "missing milestones"}
	srv := fake.serve()
	defer srv.Close()

	sig := &stubSigner{}
	client := New(srv.URL, sig)

	_, err := client.InitializeEscrow(context.Background(), testPayload())
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if lerr.Step != StepBuild {
		t.Errorf("step = %q, want build", lerr.Step)
	}
	if sig.calls != 0 {
		t.Error("signer invoked despite build failure")
	}
}

func TestInitializeEscrow_SignerRejection(t *testing.T) {
	fake := newFakeLedger(t)
	srv := fake.serve()
	defer srv.Close()

	sig := &stubSigner{err: signer.ErrRejected}
	client := New(srv.URL, sig)

	_, err := client.InitializeEscrow(context.Background(), testPayload())
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if lerr.Step != StepSign {
		t.Errorf("step = %q, want sign", lerr.Step)
	}
	if !errors.Is(err, signer.ErrRejected) {
		t.Error("rejection cause lost in wrapping")
	}
}

func TestInitializeEscrow_BroadcastRejected(t *testing.T) {
	fake := newFakeLedger(t)
	fake.broadcastBody = map[string]any{"status": "FAILED", "message": "simulation reverted"}
	srv := fake.serve()
	defer srv.Close()

	client := New(srv.URL, &stubSigner{})

	_, err := client.InitializeEscrow(context.Background(), testPayload())
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if lerr.Step != StepBroadcast {
		t.Errorf("step = %q, want broadcast", lerr.Step)
	}
	if lerr.Message != "simulation reverted" {
		t.Errorf("message = %q", lerr.Message)
	}
}

func TestInitializeEscrow_MissingContractID(t *testing.T) {
	fake := newFakeLedger(t)
	fake.broadcastBody = map[string]any{"status": "SUCCESS", "data": map[string]any{}}
	srv := fake.serve()
	defer srv.Close()

	client := New(srv.URL, &stubSigner{})

	if _, err := client.InitializeEscrow(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error when ledger omits the contract id")
	}
}

func TestSubmitFunding_NumericStatus(t *testing.T) {
	fake := newFakeLedger(t)
	// Some broadcast responses report a numeric creation code instead of a
	// status string.
	fake.broadcastBody = map[string]any{"status": 201, "message": "created"}
	srv := fake.serve()
	defer srv.Close()

	client := New(srv.URL, &stubSigner{})

	result, err := client.SubmitFunding(context.Background(), "ct_1",
		"0x1111111111111111111111111111111111111111", "100")
	if err != nil {
		t.Fatalf("SubmitFunding failed: %v", err)
	}
	if !result.Successful() {
		t.Errorf("numeric 201 status not treated as success: %+v", result)
	}
}

func TestSubmitFunding_VerdictIsNotAnError(t *testing.T) {
	fake := newFakeLedger(t)
	fake.broadcastBody = map[string]any{"status": "FAILED", "message": "insufficient funds"}
	srv := fake.serve()
	defer srv.Close()

	client := New(srv.URL, &stubSigner{})

	result, err := client.SubmitFunding(context.Background(), "ct_1",
		"0x1111111111111111111111111111111111111111", "100")
	if err != nil {
		t.Fatalf("SubmitFunding failed: %v", err)
	}
	if result.Successful() {
		t.Error("failed verdict reported as success")
	}
	if result.Message != "insufficient funds" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestSubmitFunding_BuildPayloadShape(t *testing.T) {
	fake := newFakeLedger(t)
	srv := fake.serve()
	defer srv.Close()

	client := New(srv.URL, &stubSigner{})

	if _, err := client.SubmitFunding(context.Background(), "ct_1",
		"0x1111111111111111111111111111111111111111", "42"); err != nil {
		t.Fatalf("SubmitFunding failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var sent map[string]string
	if err := json.Unmarshal(fake.lastBuild, &sent); err != nil {
		t.Fatalf("decode build payload: %v", err)
	}
	if sent["contractId"] != "ct_1" || sent["amount"] != "42" {
		t.Errorf("build payload = %v", sent)
	}
}
