// Package expiry decides when a tracked item's expiration notice fires.
//
// Two paths reach the Gateway:
//   - OnItemSaved runs inline after a create or edit and fires when the
//     item is already inside its lead window (0..LeadDays days away).
//   - RunTick runs from the cron driver, selects users whose notify-at
//     minute matches the tick and fires for items expiring exactly
//     LeadDays days from today.
//
// Both paths claim the item's sent flag with a compare-and-set before
// dispatching, so at most one notice goes out per expiration value. A
// rejected or failed dispatch releases the claim.
package expiry
