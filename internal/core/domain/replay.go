package domain

// Replay folds events in log order into an item-to-quantity projection.
// Replaying the full event log must reproduce the exact projection the
// live engine maintains; recovery and tests rely on that equivalence.
//
// retainZero mirrors the engine's remove-to-zero policy: when false, a
// remove that drains an item to zero ends its identity, matching the
// RemoveItem flag the engine sets on the live path.
func Replay(events []Event, retainZero bool) map[string]int {
	projection := make(map[string]int)

	for _, ev := range events {
		switch ev.Action {
		case ActionCreate:
			projection[ev.ItemName] = ev.Delta
		case ActionAdd:
			projection[ev.ItemName] += ev.Delta
		case ActionRemove:
			remaining := projection[ev.ItemName] - ev.Delta
			if remaining == 0 && !retainZero {
				delete(projection, ev.ItemName)
			} else {
				projection[ev.ItemName] = remaining
			}
		case ActionDelete:
			delete(projection, ev.ItemName)
		}
	}

	return projection
}
