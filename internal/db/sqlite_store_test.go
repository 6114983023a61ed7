package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/npnl/enigma-request/internal/api"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	sqliteDB, err := Open(filepath.Join(t.TempDir(), "nested", "enigma.db"), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = sqliteDB.Close() })
	store, err := NewSQLiteStore(sqliteDB)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return store
}

func TestRequestsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	older := &api.RequestRecord{FileName: "a.json", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Name: "Ada", Email: "ada@usc.edu", Status: "pending", Body: []byte(`{"notes":"x"}`)}
	newer := &api.RequestRecord{FileName: "b.json", CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Name: "Bo", Email: "bo@usc.edu", Status: "pending", ProposalStatus: "submitted", Body: []byte(`{}`)}
	for _, r := range []*api.RequestRecord{older, newer} {
		if err := s.AddRequest(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddRequest(older); !errors.Is(err, api.ErrDuplicate) {
		t.Fatalf("duplicate file name: %v", err)
	}

	list, err := s.ListRequests()
	if err != nil || len(list) != 2 || list[0].FileName != "b.json" {
		t.Fatalf("list = %+v err=%v", list, err)
	}
	got, err := s.GetRequest("a.json")
	if err != nil || got == nil || !got.CreatedAt.Equal(older.CreatedAt) || string(got.Body) != `{"notes":"x"}` || got.ProposalStatus != "" {
		t.Fatalf("get = %+v err=%v", got, err)
	}
	if missing, err := s.GetRequest("nope.json"); err != nil || missing != nil {
		t.Fatalf("missing = %+v err=%v", missing, err)
	}
}

func TestCollaboratorsUpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertCollaborator(&api.CollaboratorRecord{Index: 2, PrimaryEmail: "b@lab.org", Doc: []byte(`{"index":2}`)}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCollaborator(&api.CollaboratorRecord{Index: 1, PrimaryEmail: "a@lab.org", Doc: []byte(`{"index":1}`)}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCollaborator(&api.CollaboratorRecord{Index: 2, PrimaryEmail: "b2@lab.org", Doc: []byte(`{"index":2,"first_name":"B"}`)}); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListCollaborators()
	if err != nil || len(list) != 2 || list[0].Index != 1 || list[1].PrimaryEmail != "b2@lab.org" {
		t.Fatalf("list = %+v err=%v", list, err)
	}
	if ok, err := s.DeleteCollaborator(2); err != nil || !ok {
		t.Fatalf("delete ok=%v err=%v", ok, err)
	}
	if ok, _ := s.DeleteCollaborator(2); ok {
		t.Fatalf("second delete reported a row")
	}
}

func TestAdminsAndAccounts(t *testing.T) {
	s := newTestStore(t)
	for _, e := range []string{"one@lab.org", "One@Lab.org", "two@lab.org"} {
		if err := s.AddAdmin("directory", e); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.AddAdmin("data_request", "three@lab.org")
	admins, err := s.ListAdmins("directory")
	if err != nil || len(admins) != 2 {
		t.Fatalf("admins = %v err=%v", admins, err)
	}
	if ok, _ := s.DeleteAdmin("directory", "TWO@lab.org"); !ok {
		t.Fatalf("delete should ignore case")
	}
	if ok, _ := s.DeleteAdmin("directory", "three@lab.org"); ok {
		t.Fatalf("scopes must be separate")
	}

	if err := s.AddUser(&api.User{Email: "Ann@Lab.org", PassHash: []byte("hash"), CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUser(&api.User{Email: "ann@lab.org", PassHash: []byte("x"), CreatedAt: time.Now()}); !errors.Is(err, api.ErrDuplicate) {
		t.Fatalf("duplicate account: %v", err)
	}
	u, err := s.FindUserByEmail("ann@lab.org")
	if err != nil || u == nil || string(u.PassHash) != "hash" {
		t.Fatalf("user = %+v err=%v", u, err)
	}
	if u, _ := s.FindUserByEmail("nobody@lab.org"); u != nil {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestRunMigrationsPrefersDirAndSkipsApplied(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_custom.sql"), []byte(`CREATE TABLE custom (id INTEGER);`), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "custom.db")
	sqliteDB, err := Open(path, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sqliteDB.Close()
	if err := RunMigrations(sqliteDB, dir); err != nil {
		t.Fatalf("re-running migrations must be a no-op: %v", err)
	}
	if _, err := sqliteDB.Exec(`INSERT INTO custom (id) VALUES (1)`); err != nil {
		t.Fatalf("custom migration not applied: %v", err)
	}
	if _, err := sqliteDB.Exec(`SELECT 1 FROM requests`); err == nil {
		t.Fatalf("embedded migrations should not run when a directory is given")
	}
}
