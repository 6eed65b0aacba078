// Package models defines the core domain models for the ledger engine.
//
// # Models
//
//   - Context: the scoping unit for everything, a chat plus an optional
//     thread within it
//   - User: a ledger participant registered in one context
//   - PayRecord: one directed obligation (the payee owes the payer)
//   - PaymentGroup: an atomic batch of obligations created by one action
//   - Transfer: one entry of a computed settlement plan
//   - SplitSpec: tagged payee argument for recording a payment
//   - Account: an API account used by clients of the HTTP surface
//
// # Design Principles
//
// 1. Obligations are immutable: corrections are delete-and-recreate
// 2. Records reference users by ID, so a rename never corrupts history
// 3. Amounts are fixed-point cents (money.Amount), never floats
// 4. Derived data (balances, settlement plans) is computed fresh and
// never persisted
package models
