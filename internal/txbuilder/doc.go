// Package txbuilder prices, assembles and reads the state behind the
// approve/supply/wrap/unwrap transactions.
//
// Usage example (not compiled):
//
//	auto, err := txbuilder.NewAutoBuilderFromConfig(client, chainID, cfg.Tx, log)
//	if err != nil { ... }
//	req, err := auto.BuildSupplyTx(ctx, from, pool, usdc, amount, from, 0)
//	if err != nil { ... }
//	tx, err := req.Transaction()
//	// sign + submit tx
package txbuilder
