package main

import (
	"fmt"

	"stakingrewards/config"
	"stakingrewards/native/bank"
	"stakingrewards/storage"
)

var genesisMarkerKey = []byte("genesis/applied")

// applyGenesis mints the configured allocations once per database. It reports
// whether anything was minted.
func applyGenesis(db storage.Database, ledgers map[string]*bank.Ledger, allocations []config.Allocation) (bool, error) {
	done, err := db.Has(genesisMarkerKey)
	if err != nil {
		return false, fmt.Errorf("genesis: read marker: %w", err)
	}
	if done {
		return false, nil
	}
	for i, alloc := range allocations {
		ledger, ok := ledgers[alloc.Asset]
		if !ok {
			return false, fmt.Errorf("genesis: allocation %d: unknown asset %s", i, alloc.Asset)
		}
		if err := ledger.Mint(alloc.Address, alloc.Amount); err != nil {
			return false, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}
	if err := db.Put(genesisMarkerKey, []byte{1}); err != nil {
		return false, fmt.Errorf("genesis: write marker: %w", err)
	}
	return len(allocations) > 0, nil
}
