// Package session tracks each user's menu position and cart behind a narrow
// Get/Upsert store so the backing table can be swapped between memory and redis.
package session
