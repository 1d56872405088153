// Package access decides which users may observe or command which devices.
//
// It is a thin read-only oracle over four tables:
//
//	device_owners(device_id, user_id)   direct ownership
//	groups(id, name)                    named collections of users
//	group_members(group_id, user_id)    membership
//	device_groups(device_id, group_id)  device sharing
//
// A user can access a device when they own it or belong to a group the
// device is shared with. The WebSocket gateway consults this on every
// subscribe request; granted subscriptions are not re-checked per event.
package access
