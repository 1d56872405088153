package access

import (
	"context"
	"database/sql"
	"fmt"
)

// Service answers device authorization questions from the access control
// tables: device_owners grants direct ownership, device_groups plus
// group_members grants access through group membership.
//
// The service is read-only and safe for concurrent use; row management is
// the collaborator HTTP layer's job.
type Service struct {
	db *sql.DB
}

// NewService creates an access service backed by the given database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CanAccessDevice reports whether a user may observe or command a device.
// Access is granted to device owners and to members of any group the
// device belongs to.
func (s *Service) CanAccessDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	if userID == "" || deviceID == "" {
		return false, nil
	}

	owner, err := s.IsDeviceOwner(ctx, userID, deviceID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM device_groups dg
		 JOIN group_members gm ON gm.group_id = dg.group_id
		 WHERE dg.device_id = ? AND gm.user_id = ?`,
		deviceID,
		userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking group access: %w", err)
	}
	return count > 0, nil
}

// IsDeviceOwner reports whether a user directly owns a device.
func (s *Service) IsDeviceOwner(ctx context.Context, userID, deviceID string) (bool, error) {
	if userID == "" || deviceID == "" {
		return false, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_owners WHERE device_id = ? AND user_id = ?",
		deviceID,
		userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking device ownership: %w", err)
	}
	return count > 0, nil
}
