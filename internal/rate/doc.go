// Package rate throttles failed logins with redis fixed-window counters.
//
// Keys:
//   - login:attempts:id:{email} per identifier
//   - login:attempts:ip:{ip} per client address, when enabled
package rate
