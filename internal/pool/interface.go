package pool

// PooledObject is the contract a pool-managed value must satisfy so a worker
// can recycle it between lendings without allocating.
type PooledObject interface {
	Reset()
	SetReturned(bool)
	IsReturned() bool
}
