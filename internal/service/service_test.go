package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/recurrence"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
	"github.com/mmynk/splitledger/pkg/clock"
)

type testServer struct {
	groups   apiconnect.GroupServiceClient
	expenses apiconnect.ExpenseServiceClient
	store    storage.Store
	clock    *clock.ManualClock
}

// setupTestServer creates a test server with both GroupService and ExpenseService
// over a temporary SQLite database. The clock starts at 2024-04-15.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return setupTestServerWithStore(t, store)
}

// setupTestServerWithStore serves store, which the test server closes on cleanup.
func setupTestServerWithStore(t *testing.T, store storage.Store, opts ...recurrence.Option) *testServer {
	t.Helper()

	clk := clock.NewManual(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))
	materializer := recurrence.NewMaterializer(store, clk, opts...)

	groupPath, groupHandler := apiconnect.NewGroupServiceHandler(NewGroupService(store, materializer, "USD"))
	expensePath, expenseHandler := apiconnect.NewExpenseServiceHandler(NewExpenseService(store, materializer, clk))

	mux := http.NewServeMux()
	mux.Handle(groupPath, groupHandler)
	mux.Handle(expensePath, expenseHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testServer{
		groups:   apiconnect.NewGroupServiceClient(http.DefaultClient, server.URL),
		expenses: apiconnect.NewExpenseServiceClient(http.DefaultClient, server.URL),
		store:    store,
		clock:    clk,
	}
}

func (s *testServer) createGroup(t *testing.T, names ...string) *api.Group {
	t.Helper()
	resp, err := s.groups.CreateGroup(context.Background(), connect.NewRequest(&api.CreateGroupRequest{
		Name:         "Roommates",
		Participants: names,
	}))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return resp.Msg.Group
}

func (s *testServer) createObligation(t *testing.T, groupID string, in *api.ObligationInput) *api.Obligation {
	t.Helper()
	resp, err := s.expenses.CreateObligation(context.Background(), connect.NewRequest(&api.CreateObligationRequest{
		GroupID:    groupID,
		Obligation: in,
	}))
	if err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}
	return resp.Msg.Obligation
}

func (s *testServer) listObligations(t *testing.T, groupID string) []*api.Obligation {
	t.Helper()
	resp, err := s.expenses.ListObligations(context.Background(), connect.NewRequest(&api.ListObligationsRequest{
		GroupID: groupID,
	}))
	if err != nil {
		t.Fatalf("ListObligations failed: %v", err)
	}
	return resp.Msg.Obligations
}

func (s *testServer) balances(t *testing.T, groupID string) *api.GetBalancesResponse {
	t.Helper()
	resp, err := s.groups.GetBalances(context.Background(), connect.NewRequest(&api.GetBalancesRequest{
		GroupID: groupID,
	}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	return resp.Msg
}

func evenly(ids ...string) []*api.Share {
	shares := make([]*api.Share, len(ids))
	for i, id := range ids {
		shares[i] = &api.Share{ParticipantID: id}
	}
	return shares
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connect error, got %T: %v", err, err)
	}
	if cerr.Code() != want {
		t.Errorf("expected code %v, got %v (%v)", want, cerr.Code(), err)
	}
}

func dates(obligations []*api.Obligation) []string {
	out := make([]string, len(obligations))
	for i, o := range obligations {
		out[i] = o.Date
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
