package port

// ChangeNotifier receives a payloadless "ledger changed" signal after
// each successful command. Delivery is fire-and-forget: Changed must not
// block the caller.
type ChangeNotifier interface {
	Changed()
}
