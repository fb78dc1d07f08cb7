package historystore

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"netwalk/internal/session"
	"netwalk/internal/sessionmgr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordSessionPersistsAndReadsBack(t *testing.T) {
	store := openTestStore(t)
	daemonID, networkID, sessionID := uuid.New(), uuid.New(), uuid.New()

	errMsg := "boom"
	state := sessionmgr.SessionState{
		SessionID: sessionID,
		DaemonID:  daemonID,
		NetworkID: networkID,
		Phase:     session.StateFailed,
		Progress:  57,
		Error:     &errMsg,
		DiscoveryType: sessionmgr.DiscoveryType{
			Kind:               sessionmgr.KindNetwork,
			SubnetIDs:          []uuid.UUID{uuid.New()},
			HostNamingFallback: true,
		},
	}

	if err := store.RecordSession(state); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	records, err := store.ListByNetwork(context.Background(), []uuid.UUID{networkID})
	if err != nil {
		t.Fatalf("ListByNetwork() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListByNetwork() returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.DaemonID != daemonID || got.NetworkID != networkID {
		t.Errorf("got daemon/network = %v/%v, want %v/%v", got.DaemonID, got.NetworkID, daemonID, networkID)
	}
	if got.Name != sessionmgr.KindNetwork.String() {
		t.Errorf("Name = %q, want %q", got.Name, sessionmgr.KindNetwork.String())
	}
	if got.Session.Phase != session.StateFailed || got.Session.Progress != 57 {
		t.Errorf("Session snapshot = %+v, want Phase=Failed Progress=57", got.Session)
	}
	if got.Session.Error == nil || *got.Session.Error != errMsg {
		t.Errorf("Session.Error = %v, want %q", got.Session.Error, errMsg)
	}
	if len(got.DiscoveryType.SubnetIDs) != 1 {
		t.Errorf("DiscoveryType.SubnetIDs = %v, want 1 entry", got.DiscoveryType.SubnetIDs)
	}
}

func TestListByNetworkFiltersUnrelatedRecords(t *testing.T) {
	store := openTestStore(t)
	wantNetwork := uuid.New()
	otherNetwork := uuid.New()

	if err := store.RecordSession(sessionmgr.SessionState{
		SessionID: uuid.New(), DaemonID: uuid.New(), NetworkID: wantNetwork,
		Phase: session.StateComplete, DiscoveryType: sessionmgr.DiscoveryType{Kind: sessionmgr.KindDocker},
	}); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}
	if err := store.RecordSession(sessionmgr.SessionState{
		SessionID: uuid.New(), DaemonID: uuid.New(), NetworkID: otherNetwork,
		Phase: session.StateComplete, DiscoveryType: sessionmgr.DiscoveryType{Kind: sessionmgr.KindDocker},
	}); err != nil {
		t.Fatalf("RecordSession() error = %v", err)
	}

	records, err := store.ListByNetwork(context.Background(), []uuid.UUID{wantNetwork})
	if err != nil {
		t.Fatalf("ListByNetwork() error = %v", err)
	}
	if len(records) != 1 || records[0].NetworkID != wantNetwork {
		t.Fatalf("ListByNetwork() = %+v, want exactly one record for %v", records, wantNetwork)
	}
}

func TestGetReturnsFalseForUnknownID(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() ok = true for an id never recorded")
	}
}
