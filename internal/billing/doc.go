// Package billing orchestrates in-app purchases and the inventory of owned
// products.
//
// A Helper admits one task at a time through a TaskGate. Purchase tasks walk
// the handshake with the remote subscription service: registration of a user
// id and token, the platform purchase flow, then verification of the purchase
// token. Results are reported to a Listener and persisted through Settings.
// Inventory requests that arrive while another task runs are coalesced and
// replayed once the gate is free.
package billing
