// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package types

// Quota holds per-tenant storage counters and limits. Counters are only
// mutated through atomic conditional updates; they must never go negative
// or exceed the configured limits under concurrent admission.
type Quota struct {
	TenantID    string `json:"tenant_id"`
	UsedBytes   int64  `json:"used_bytes"`
	UsedObjects int64  `json:"used_objects"`
	MaxBytes    int64  `json:"max_bytes"`   // 0 = unlimited
	MaxObjects  int64  `json:"max_objects"` // 0 = unlimited
	UpdatedAt   int64  `json:"updated_at"`
}

// BytesRemaining returns the number of admissible bytes, or -1 if unlimited.
func (q *Quota) BytesRemaining() int64 {
	if q.MaxBytes <= 0 {
		return -1
	}
	if q.UsedBytes >= q.MaxBytes {
		return 0
	}
	return q.MaxBytes - q.UsedBytes
}
