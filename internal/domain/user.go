package domain

import "time"

// User carries the fields the loop service reads: the credit balance debited
// per render and the storage accounting used by upload quota checks.
type User struct {
	ID            string
	Email         string
	CreditBalance int
	StorageUsed   int64
	StorageQuota  int64
	CreatedAt     time.Time
}
