// Command billingctl inspects and resets the billing state stored by the
// map manager service.
//
// Usage:
//
//	billingctl <command>
//
// Commands:
//
//	status          Print the install id and start count, the registered
//	                user id (token masked), every entitlement flag and
//	                whether an API password is set.
//
//	reset-identity  Clear the user id, user token and the set of purchase
//	                tokens already sent. The next live updates purchase
//	                registers again and resends every token.
//
//	set-token       Prompt for a user token without echo and store it.
//	                Requires a registered user.
//
//	password        Prompt twice for an API password and store it. All
//	                existing sessions are invalidated.
//
//	vacuum          Compact the database. Run it while the service is stopped.
//
// Environment:
//
//	DATABASE_DIR - Path to database directory (default: /database)
//
// Entitlements shown may lag a purchase the running service has not finished.
package main
