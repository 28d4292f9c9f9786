// Package storage provides the small key-value settings store used by the
// bridge.
//
// It backs:
//   - Boolean feature flags read by control requests (isCallReceiver)
//   - The last known registration token (so configure can rebroadcast it
//     after a restart)
//
// Values are strings grouped by namespace. Drivers: file, sqlite, redis,
// memory.
package storage
