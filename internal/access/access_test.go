package access

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the access tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE groups (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);
		CREATE TABLE group_members (
			group_id TEXT NOT NULL,
			user_id  TEXT NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE TABLE device_owners (
			device_id TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			PRIMARY KEY (device_id, user_id)
		);
		CREATE TABLE device_groups (
			device_id TEXT NOT NULL,
			group_id  TEXT NOT NULL,
			PRIMARY KEY (device_id, group_id)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func seed(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("seeding test data: %v", err)
	}
}

func TestCanAccessDevice_Owner(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, "INSERT INTO device_owners (device_id, user_id) VALUES (?, ?)", "dev-1", "alice")

	svc := NewService(db)

	ok, err := svc.CanAccessDevice(context.Background(), "alice", "dev-1")
	if err != nil {
		t.Fatalf("CanAccessDevice() error = %v", err)
	}
	if !ok {
		t.Error("owner should have access")
	}
}

func TestCanAccessDevice_GroupMember(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, "INSERT INTO groups (id, name) VALUES (?, ?)", "grp-1", "Fleet A")
	seed(t, db, "INSERT INTO group_members (group_id, user_id) VALUES (?, ?)", "grp-1", "bob")
	seed(t, db, "INSERT INTO device_groups (device_id, group_id) VALUES (?, ?)", "dev-1", "grp-1")

	svc := NewService(db)

	ok, err := svc.CanAccessDevice(context.Background(), "bob", "dev-1")
	if err != nil {
		t.Fatalf("CanAccessDevice() error = %v", err)
	}
	if !ok {
		t.Error("group member should have access")
	}
}

func TestCanAccessDevice_Denied(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, "INSERT INTO device_owners (device_id, user_id) VALUES (?, ?)", "dev-1", "alice")
	seed(t, db, "INSERT INTO groups (id, name) VALUES (?, ?)", "grp-1", "Fleet A")
	seed(t, db, "INSERT INTO group_members (group_id, user_id) VALUES (?, ?)", "grp-1", "bob")
	// dev-2 is in no group and owned by nobody relevant

	svc := NewService(db)

	tests := []struct {
		name     string
		userID   string
		deviceID string
	}{
		{"stranger", "mallory", "dev-1"},
		{"member of unrelated group", "bob", "dev-2"},
		{"owner of different device", "alice", "dev-2"},
		{"empty user", "", "dev-1"},
		{"empty device", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.CanAccessDevice(context.Background(), tt.userID, tt.deviceID)
			if err != nil {
				t.Fatalf("CanAccessDevice() error = %v", err)
			}
			if ok {
				t.Error("access should be denied")
			}
		})
	}
}

func TestCanAccessDevice_OwnerAndMember(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, "INSERT INTO device_owners (device_id, user_id) VALUES (?, ?)", "dev-1", "alice")
	seed(t, db, "INSERT INTO groups (id, name) VALUES (?, ?)", "grp-1", "Fleet A")
	seed(t, db, "INSERT INTO group_members (group_id, user_id) VALUES (?, ?)", "grp-1", "alice")
	seed(t, db, "INSERT INTO device_groups (device_id, group_id) VALUES (?, ?)", "dev-1", "grp-1")

	svc := NewService(db)

	ok, err := svc.CanAccessDevice(context.Background(), "alice", "dev-1")
	if err != nil {
		t.Fatalf("CanAccessDevice() error = %v", err)
	}
	if !ok {
		t.Error("user who is both owner and member should have access")
	}
}

func TestIsDeviceOwner(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, "INSERT INTO device_owners (device_id, user_id) VALUES (?, ?)", "dev-1", "alice")
	seed(t, db, "INSERT INTO groups (id, name) VALUES (?, ?)", "grp-1", "Fleet A")
	seed(t, db, "INSERT INTO group_members (group_id, user_id) VALUES (?, ?)", "grp-1", "bob")
	seed(t, db, "INSERT INTO device_groups (device_id, group_id) VALUES (?, ?)", "dev-1", "grp-1")

	svc := NewService(db)

	ok, err := svc.IsDeviceOwner(context.Background(), "alice", "dev-1")
	if err != nil {
		t.Fatalf("IsDeviceOwner() error = %v", err)
	}
	if !ok {
		t.Error("alice owns dev-1")
	}

	// Group access does not make bob an owner.
	ok, err = svc.IsDeviceOwner(context.Background(), "bob", "dev-1")
	if err != nil {
		t.Fatalf("IsDeviceOwner() error = %v", err)
	}
	if ok {
		t.Error("group member must not be reported as owner")
	}
}
