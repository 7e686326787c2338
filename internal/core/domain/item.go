package domain

// Item is one cut of meat currently in stock. Name is the identity:
// unique, case-sensitive, non-empty. Quantity is never negative.
type Item struct {
	Name     string
	Quantity int
}

// Principal identifies the caller of a ledger command. Commands issued
// without mutate capability fail before any validation runs.
type Principal struct {
	Email     string
	CanMutate bool
}
